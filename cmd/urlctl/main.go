// Command urlctl reads and writes the URL tables declared in the definitions file.
package main

import "os"

func main() {
	os.Exit(execute())
}
