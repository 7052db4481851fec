package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

func postJSON(base, path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return http.Post(base+path, "application/json", bytes.NewReader(b))
}

func getQuery(base, path string, q url.Values) (*http.Response, error) {
	u := base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return http.Get(u)
}

// printBody pretty-prints a JSON response body, or the raw body when it is
// not JSON, followed by the HTTP status.
func printBody(out io.Writer, resp *http.Response) error {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, b, "", "  ") == nil {
		fmt.Fprintln(out, pretty.String())
	} else if len(b) > 0 {
		fmt.Fprintln(out, string(b))
	}
	fmt.Fprintln(out, "status:", resp.Status)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
