// Package oracle shapes the `eval`/`guess`/`train`/`myproblems`
// requests described in spec.md §6. It is an external collaborator,
// not part of the solver's core, so its JSON shapes follow the
// contest's wire format exactly and its HTTP client borrows the
// teacher's internal/webclient.HTTPClient field shape (base URL,
// headers, timeout, user agent) without the rest of that module's
// session/cookie-jar machinery, which this boundary never needs.
package oracle

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"bvsolve/internal/solverr"
)

// Client talks to the contest oracle over plain HTTP POST + JSON,
// using sonic (rather than encoding/json) to keep the per-candidate
// guess/eval round trip cheap — grounded on sonic being the codec gin
// pulls in across the pack's leanlp-BTC-coinjoin service.
type Client struct {
	BaseURL   string
	AuthToken string
	UserAgent string
	HTTP      *http.Client
}

// NewClient returns a Client with a sane default timeout.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		BaseURL:   baseURL,
		AuthToken: authToken,
		UserAgent: "bvsolve/1.0",
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

// EvalRequest is the /eval request body.
type EvalRequest struct {
	ID        string   `json:"id"`
	Arguments []string `json:"arguments"`
}

// EvalResponse is the /eval response body.
type EvalResponse struct {
	Status  string   `json:"status"`
	Outputs []string `json:"outputs"`
	Message string   `json:"message,omitempty"`
}

// GuessRequest is the /guess request body.
type GuessRequest struct {
	ID      string `json:"id"`
	Program string `json:"program"`
}

// GuessResponse is the /guess response body. On a mismatch, Values
// holds [input, expected, got] in hex.
type GuessResponse struct {
	Status  string   `json:"status"`
	Values  []string `json:"values,omitempty"`
	Message string   `json:"message,omitempty"`
}

// TrainRequest is the /train request body.
type TrainRequest struct {
	Size      int      `json:"size,omitempty"`
	Operators []string `json:"operators,omitempty"`
}

// TrainResponse is the /train response body.
type TrainResponse struct {
	ID        string   `json:"id"`
	Size      int      `json:"size"`
	Operators []string `json:"operators"`
	Challenge string   `json:"challenge"`
	Message   string   `json:"message,omitempty"`
}

// Problem is one entry of the /myproblems response.
type Problem struct {
	ID        string   `json:"id"`
	Size      int      `json:"size"`
	Operators []string `json:"operators"`
	Solved    bool     `json:"solved,omitempty"`
	TimeLeft  *float64 `json:"timeLeft,omitempty"`
}

// SizeHistogram tabulates problems per declared size up to 30,
// reproducing protocol.cc's Protocol::print_tasks tabulation (dropped
// by spec.md's distillation, restored per SPEC_FULL.md §6).
func SizeHistogram(problems []Problem) [31]int {
	var hist [31]int
	for _, p := range problems {
		if p.Size >= 0 && p.Size <= 30 {
			hist[p.Size]++
		}
	}
	return hist
}

func hex64(v uint64) string { return fmt.Sprintf("0x%x", v) }

func parseHex64(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "0x%x", &v)
	return v, err
}

// Eval evaluates the oracle's function id on args, returning the
// outputs in argument order.
func (c *Client) Eval(ctx context.Context, id string, args []uint64) ([]uint64, error) {
	reqArgs := make([]string, len(args))
	for i, a := range args {
		reqArgs[i] = hex64(a)
	}
	var resp EvalResponse
	if err := c.send(ctx, "eval", EvalRequest{ID: id, Arguments: reqArgs}, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "error" {
		return nil, solverr.NewOracle("eval", id, resp.Message)
	}
	outputs := make([]uint64, len(resp.Outputs))
	for i, o := range resp.Outputs {
		v, err := parseHex64(o)
		if err != nil {
			return nil, solverr.NewTransport("eval", err)
		}
		outputs[i] = v
	}
	return outputs, nil
}

// GuessOutcome is the decoded result of a Guess call.
type GuessOutcome struct {
	Win               bool
	CounterExampleIn  uint64
	CounterExampleOut uint64
	HasCounterExample bool
}

// Guess submits program for the given challenge id.
func (c *Client) Guess(ctx context.Context, id, program string) (GuessOutcome, error) {
	var resp GuessResponse
	if err := c.send(ctx, "guess", GuessRequest{ID: id, Program: program}, &resp); err != nil {
		return GuessOutcome{}, err
	}
	switch resp.Status {
	case "win":
		return GuessOutcome{Win: true}, nil
	case "mismatch":
		if len(resp.Values) < 2 {
			return GuessOutcome{}, solverr.NewTransport("guess", fmt.Errorf("mismatch with %d values", len(resp.Values)))
		}
		in, err := parseHex64(resp.Values[0])
		if err != nil {
			return GuessOutcome{}, solverr.NewTransport("guess", err)
		}
		expected, err := parseHex64(resp.Values[1])
		if err != nil {
			return GuessOutcome{}, solverr.NewTransport("guess", err)
		}
		return GuessOutcome{CounterExampleIn: in, CounterExampleOut: expected, HasCounterExample: true}, nil
	case "error":
		return GuessOutcome{}, solverr.NewOracle("guess", id, resp.Message)
	default:
		return GuessOutcome{}, solverr.NewTransport("guess", fmt.Errorf("unknown status %q", resp.Status))
	}
}

// Train requests a fresh training problem.
func (c *Client) Train(ctx context.Context, size int, operators []string) (TrainResponse, error) {
	var resp TrainResponse
	err := c.send(ctx, "train", TrainRequest{Size: size, Operators: operators}, &resp)
	return resp, err
}

// MyProblems lists the account's problem inventory.
func (c *Client) MyProblems(ctx context.Context) ([]Problem, error) {
	var resp []Problem
	err := c.send(ctx, "myproblems", struct{}{}, &resp)
	return resp, err
}

// send performs one bounded-retry POST: 3 attempts, waiting 200 ms
// before the second and 400 ms before the third. Spec.md explicitly says bounded retries aren't required
// (the overall time budget dominates) but doesn't forbid them, and
// the teacher's HTTPClient struct already models a Timeout-bearing
// client, so a small retry loop belongs here rather than being
// invented from nothing.
func (c *Client) send(ctx context.Context, command string, body, out any) error {
	data, err := sonic.Marshal(body)
	if err != nil {
		return solverr.NewTransport(command, err)
	}

	url := fmt.Sprintf("%s/%s?auth=%s", c.BaseURL, command, c.AuthToken)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return solverr.NewTransport(command, ctx.Err())
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return solverr.NewTransport(command, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.UserAgent)

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody := make([]byte, 0, 4096)
		buf := make([]byte, 4096)
		for {
			n, rerr := resp.Body.Read(buf)
			respBody = append(respBody, buf[:n]...)
			if rerr != nil {
				break
			}
		}
		resp.Body.Close()

		if err := sonic.Unmarshal(respBody, out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return solverr.NewTransport(command, lastErr)
}
