package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	AuthTypeAPIKey = "apiKey"
	AuthTypeOAuth2 = "oauth2"
	AuthTypeHTTP   = "http"

	authInQuery  = "query"
	authInHeader = "header"

	authBasicScheme = "basic"

	flowPassword          = "password"
	flowClientCredentials = "client_credentials"
)

// AuthParams describes the credentials sent to the remote resource.
type AuthParams struct {
	Type         string   `json:"type" yaml:"type,omitempty"`
	Scheme       string   `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	In           string   `json:"in,omitempty" yaml:"in,omitempty"`
	APIKey       string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Username     string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password     string   `json:"password,omitempty" yaml:"password,omitempty"`
	FlowName     string   `json:"flow_name,omitempty" yaml:"flow_name,omitempty"`
	ClientID     string   `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	TokenURL     string   `json:"token_url,omitempty" yaml:"token_url,omitempty"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

func (p *AuthParams) Validate() error {
	switch p.Type {
	case "":
		return nil
	case AuthTypeAPIKey:
		if p.Name == "" || p.APIKey == "" {
			return fmt.Errorf("auth apiKey: missing required fields name and api_key")
		}
		if p.In == "" {
			p.In = authInHeader
		}
		if p.In != authInHeader && p.In != authInQuery {
			return fmt.Errorf("auth apiKey: unsupported in %s", p.In)
		}
	case AuthTypeHTTP:
		if p.Scheme == "" {
			p.Scheme = authBasicScheme
		}
		if p.Scheme != authBasicScheme {
			return fmt.Errorf("auth http: supported only basic scheme")
		}
		if p.Username == "" {
			return fmt.Errorf("auth http: missing required field username")
		}
	case AuthTypeOAuth2:
		if p.TokenURL == "" {
			return fmt.Errorf("auth oauth2: missing token_url")
		}
		if p.FlowName == "" {
			p.FlowName = flowClientCredentials
			if p.Username != "" {
				p.FlowName = flowPassword
			}
		}
		switch p.FlowName {
		case flowPassword:
			if p.Username == "" || p.Password == "" {
				return fmt.Errorf("auth oauth2 password: missing username or password")
			}
		case flowClientCredentials:
			if p.ClientID == "" || p.ClientSecret == "" {
				return fmt.Errorf("auth oauth2 client_credentials: missing client_id or client_secret")
			}
		default:
			return fmt.Errorf("auth oauth2: unsupported flow %s", p.FlowName)
		}
	default:
		return fmt.Errorf("unsupported auth type %s", p.Type)
	}
	return nil
}

// RoundTripper decorates the base transport with the credentials.
func (p AuthParams) RoundTripper(base http.RoundTripper) (http.RoundTripper, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Type {
	case AuthTypeAPIKey:
		return &apiKeyTransport{base: base, name: p.Name, key: p.APIKey, in: p.In}, nil
	case AuthTypeHTTP:
		return &basicTransport{base: base, username: p.Username, password: p.Password}, nil
	case AuthTypeOAuth2:
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: base})
		var ts oauth2.TokenSource
		switch p.FlowName {
		case flowPassword:
			ts = &passwordTokenSource{ctx: ctx, params: p}
		case flowClientCredentials:
			c := &clientcredentials.Config{
				ClientID:     p.ClientID,
				ClientSecret: p.ClientSecret,
				TokenURL:     p.TokenURL,
				Scopes:       p.Scopes,
			}
			ts = c.TokenSource(ctx)
		}
		return &oauth2Transport{base: base, tokenSource: &cachedTokenSource{base: ts}}, nil
	}
	return base, nil
}

type apiKeyTransport struct {
	base http.RoundTripper
	name string
	key  string
	in   string
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	switch t.in {
	case authInQuery:
		q := req.URL.Query()
		q.Set(t.name, t.key)
		req.URL.RawQuery = q.Encode()
	case authInHeader:
		req.Header.Set(t.name, t.key)
	default:
		return nil, fmt.Errorf("unsupported apiKey in %s", t.in)
	}
	return t.base.RoundTrip(req)
}

type basicTransport struct {
	base     http.RoundTripper
	username string
	password string
}

func (t *basicTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

type oauth2Transport struct {
	base        http.RoundTripper
	tokenSource oauth2.TokenSource
}

func (t *oauth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.tokenSource.Token()
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	token.SetAuthHeader(req)
	return t.base.RoundTrip(req)
}

type cachedTokenSource struct {
	base oauth2.TokenSource

	mu    sync.Mutex
	cache *oauth2.Token
}

func (c *cachedTokenSource) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache.Valid() {
		return c.cache, nil
	}

	token, err := c.base.Token()
	if err != nil {
		return nil, err
	}

	c.cache = token
	return token, nil
}

// passwordTokenSource requests the first token on demand and refreshes it afterwards.
type passwordTokenSource struct {
	ctx    context.Context
	params AuthParams

	mu sync.Mutex
	ts oauth2.TokenSource
}

func (s *passwordTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ts != nil {
		return s.ts.Token()
	}
	c := &oauth2.Config{
		ClientID:     s.params.ClientID,
		ClientSecret: s.params.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: s.params.TokenURL},
		Scopes:       s.params.Scopes,
	}
	token, err := c.PasswordCredentialsToken(s.ctx, s.params.Username, s.params.Password)
	if err != nil {
		return nil, err
	}
	s.ts = c.TokenSource(s.ctx, token)
	return token, nil
}
