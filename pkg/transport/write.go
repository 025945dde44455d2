package transport

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// WriteBuffer streams the request body of the upload.
// The upload completes on Finalize, a canceled upload is aborted.
type WriteBuffer struct {
	pw     *io.PipeWriter
	cancel context.CancelCauseFunc
	send   time.Duration
	g      errgroup.Group

	once sync.Once
	err  error
}

// OpenWrite starts the chunked upload, redirects are not followed.
func (c *Client) OpenWrite(ctx context.Context, u *url.URL, method string, headers http.Header) (*WriteBuffer, error) {
	if err := c.cfg.HostFilter.CheckURL(u); err != nil {
		return nil, err
	}
	if method == "" {
		method = http.MethodPost
	}
	target, user := splitUserinfo(u)

	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancelCause(ctx)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), pr)
	if err != nil {
		cancel(err)
		return nil, &Error{Op: "write", URL: target.Redacted(), Err: err}
	}
	req.ContentLength = -1
	c.setHeaders(req, headers, user)

	wb := &WriteBuffer{
		pw:     pw,
		cancel: cancel,
		send:   c.cfg.Timeouts.Send,
	}
	wb.g.Go(func() error {
		resp, err := c.write.Do(req)
		if err != nil {
			if cause := context.Cause(ctx); cause != nil {
				err = cause
			}
			err = &Error{Op: "write", URL: target.Redacted(), Err: err}
			pr.CloseWithError(err)
			return err
		}
		if err := checkResponse("write", target, resp); err != nil {
			pr.CloseWithError(err)
			return err
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorSnippetSize))
		resp.Body.Close()
		pr.Close()
		return nil
	})
	return wb, nil
}

func (wb *WriteBuffer) Write(p []byte) (int, error) {
	if wb.send > 0 {
		t := time.AfterFunc(wb.send, func() {
			wb.cancel(ErrSendTimeout)
		})
		defer t.Stop()
	}
	return wb.pw.Write(p)
}

// Finalize completes the request body and waits for the response.
func (wb *WriteBuffer) Finalize() error {
	wb.once.Do(func() {
		wb.pw.Close()
		wb.err = wb.g.Wait()
		wb.cancel(nil)
	})
	return wb.err
}

// Cancel aborts the upload, the remote side never receives the complete body.
func (wb *WriteBuffer) Cancel(cause error) {
	if cause == nil {
		cause = ErrWriteCanceled
	}
	wb.once.Do(func() {
		wb.cancel(cause)
		wb.pw.CloseWithError(cause)
		_ = wb.g.Wait()
		wb.err = cause
	})
}
