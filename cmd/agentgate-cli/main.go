package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/davidahmann/agentgate/internal/auth"
	"github.com/davidahmann/agentgate/internal/logging"
)

const defaultAddr = "http://localhost:8080"

var (
	apiAddr   string
	apiToken  string
	apiUser   string
	jsonOut   bool
	logLevel  string
	timeout   time.Duration
	exitFn    = os.Exit
	errSilent = errors.New("command failed")
)

var rootCmd = &cobra.Command{
	Use:           "agentgate",
	Short:         "Operate an agentgate gateway",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logLevel, "console", cmd.ErrOrStderr())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&apiAddr, "addr", envOrDefault("AGENTGATE_ADDR", defaultAddr), "gateway API address")
	pf.StringVar(&apiToken, "token", envOrDefault("AGENTGATE_TOKEN", os.Getenv("AGENTGATE_DEV_TOKEN")), "bearer token")
	pf.StringVar(&apiUser, "user", os.Getenv("AGENTGATE_USER"), "operator identity sent as X-User-ID")
	pf.BoolVar(&jsonOut, "json", false, "print raw JSON responses")
	pf.StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
}

func main() {
	exitFn(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(stderr, "error:", err)
		}
		return 1
	}
	return 0
}

// apiError is a non-2xx gateway response.
type apiError struct {
	Status int
	Code   string `json:"error"`
	Reason string `json:"reason"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("gateway returned %d", e.Status)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Reason != "" && e.Reason != e.Code {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// call sends one request to the gateway and decodes a 2xx JSON body into
// out. With --json the raw body is echoed to w instead.
func call(cmd *cobra.Command, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(apiAddr, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+apiToken)
	}
	if apiUser != "" {
		req.Header.Set(auth.HeaderUserID, apiUser)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if jsonOut {
		_, err := cmd.OutOrStdout().Write(raw)
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}
