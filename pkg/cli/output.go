package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harvest-ai/harvest/pkg/server"
)

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

// printJSON writes one compact JSON document, the success output of
// every command.
func printJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}

// PrintError writes the failure contract to stderr: a compact JSON
// object with the symbolic code, message, recommendations and optional
// data payload. Remote errors are passed through as the server
// reported them; local errors are classified the same way the server
// classifies its own.
func PrintError(w io.Writer, err error) {
	var remote *RemoteError
	body := server.ClassifyError(err)
	if errors.As(err, &remote) {
		body = &remote.Body
	}
	data, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		fmt.Fprintf(w, `{"code":%q,"message":%q}`+"\n", server.CodeInternal, err.Error())
		return
	}
	fmt.Fprintln(w, string(data))
}

func splitEndpoints(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
