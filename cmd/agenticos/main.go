// Command agenticos issues one chat completion against a GLM endpoint and
// prints the normalized result: reasoning bracketed in canonical thinking
// markers, tool calls as structured JSON, content clean of vendor markup.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nexiouscaliver/AgenticOS/pkg/config"
	"github.com/nexiouscaliver/AgenticOS/pkg/model"
	"github.com/nexiouscaliver/AgenticOS/pkg/observability"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type options struct {
	prompt        string
	modelID       string
	system        string
	maxTokens     int
	thinking      string
	noStream      bool
	configPath    string
	timeout       time.Duration
	metricsListen string
	trace         bool
	listModels    bool
	validateKey   bool
	showVersion   bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("agenticos", flag.ContinueOnError)
	fs.StringVar(&opts.prompt, "p", "", "prompt to send (reads stdin when omitted)")
	fs.StringVar(&opts.modelID, "model", "", "model id (default from config)")
	fs.StringVar(&opts.system, "system", "", "system prompt")
	fs.IntVar(&opts.maxTokens, "max-tokens", 0, "requested output tokens (budget may clamp)")
	fs.StringVar(&opts.thinking, "thinking", "", "request reasoning output: enabled or disabled (default: off)")
	fs.BoolVar(&opts.noStream, "no-stream", false, "use the blocking completion path")
	fs.StringVar(&opts.configPath, "config", "", "config file path (default: ~/.agenticos/config.yaml)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "request timeout (0: no timeout)")
	fs.StringVar(&opts.metricsListen, "metrics-listen", "", "address to serve Prometheus metrics on (e.g. :9090)")
	fs.BoolVar(&opts.trace, "trace", false, "emit OpenTelemetry spans to stdout")
	fs.BoolVar(&opts.listModels, "list-models", false, "print the model catalog and exit")
	fs.BoolVar(&opts.validateKey, "validate-key", false, "check API credentials and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.prompt == "" && fs.NArg() > 0 {
		opts.prompt = strings.Join(fs.Args(), " ")
	}
	switch opts.thinking {
	case "", model.ThinkingEnabledSetting, model.ThinkingDisabledSetting:
	default:
		return nil, fmt.Errorf("invalid -thinking value %q (valid: enabled, disabled)", opts.thinking)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("agenticos %s (%s, built %s)\n", version, commit, buildDate)
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "agenticos: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	if opts.trace {
		tp, err := observability.NewTracerProvider("agenticos")
		if err != nil {
			return fmt.Errorf("tracing setup: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Printf("tracer shutdown: %v", err)
			}
		}()
	}

	if opts.metricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.MetricsHandler())
			if err := http.ListenAndServe(opts.metricsListen, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	provider, err := model.NewProvider(cfg)
	if err != nil {
		return err
	}
	if closer, ok := provider.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	if opts.timeout > 0 {
		if tc, ok := provider.(model.TimeoutConfigurer); ok {
			tc.SetTimeout(opts.timeout)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case opts.listModels:
		return listModels(provider)
	case opts.validateKey:
		return validateKey(ctx, provider)
	}

	prompt := opts.prompt
	if prompt == "" {
		data, err := readStdin()
		if err != nil {
			return err
		}
		prompt = strings.TrimSpace(data)
	}
	if prompt == "" {
		return fmt.Errorf("no prompt given; pass -p or pipe text on stdin")
	}

	req := buildRequest(opts, prompt)
	if opts.noStream {
		return runBlocking(ctx, provider, req)
	}
	return runStreaming(ctx, provider, req)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func readStdin() (string, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func buildRequest(opts *options, prompt string) model.ChatRequest {
	req := model.ChatRequest{
		Model:     opts.modelID,
		MaxTokens: opts.maxTokens,
	}
	if opts.system != "" {
		req.Messages = append(req.Messages, model.Message{Role: "system", Content: opts.system})
	}
	req.Messages = append(req.Messages, model.Message{Role: "user", Content: prompt})
	if opts.thinking != "" {
		req.Thinking = &model.ThinkingOption{Type: opts.thinking}
	}
	return req
}

func runBlocking(ctx context.Context, provider model.Provider, req model.ChatRequest) error {
	resp, err := provider.ChatCompletion(ctx, req)
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("empty response from upstream")
	}

	msg := resp.Choices[0].Message
	if msg.Reasoning != "" {
		fmt.Print(formatReasoning(msg.Reasoning))
	}
	if text := contentText(msg.Content); text != "" {
		fmt.Println(text)
	}
	for _, call := range msg.ToolCalls {
		printToolCall(call)
	}
	fmt.Fprintf(os.Stderr, "\n[%s] prompt=%d completion=%d total=%d\n",
		resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	return nil
}

func runStreaming(ctx context.Context, provider model.Provider, req model.ChatRequest) error {
	chunks, errs := provider.ChatCompletionStream(ctx, req)

	acc := model.AcquireStreamAccumulator()
	defer model.ReleaseStreamAccumulator(acc)

	for chunk := range chunks {
		acc.Add(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			fmt.Print(delta.Content)
		}
		if r := delta.ReasoningText(); r != "" {
			fmt.Print(r)
		}
		for _, tc := range delta.ToolCalls {
			if tc.ID != "" && tc.Function != nil && tc.Function.Name != "" {
				fmt.Println()
				printToolCall(model.ToolCall{
					ID:   tc.ID,
					Type: tc.Type,
					Function: model.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
		}
	}
	if err := <-errs; err != nil {
		return err
	}
	fmt.Println()

	if usage := acc.Usage(); usage != nil {
		fmt.Fprintf(os.Stderr, "\n[usage] prompt=%d completion=%d total=%d\n",
			usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	}
	return nil
}

func listModels(provider model.Provider) error {
	catalog, err := provider.FetchCatalog()
	if err != nil {
		return err
	}
	for _, m := range catalog.Data {
		fmt.Printf("%-16s ctx=%-8d in=$%.2f/M out=$%.2f/M  %s\n",
			m.ID, m.ContextLength, m.Pricing.Prompt, m.Pricing.Completion, m.Description)
	}
	return nil
}

func validateKey(ctx context.Context, provider model.Provider) error {
	validator, ok := provider.(interface {
		ValidateAPIKey(ctx context.Context) error
	})
	if !ok {
		return fmt.Errorf("provider does not support key validation")
	}
	if err := validator.ValidateAPIKey(ctx); err != nil {
		return fmt.Errorf("API key rejected: %w", err)
	}
	fmt.Println("API key accepted")
	return nil
}

func formatReasoning(reasoning string) string {
	return "<thinking>\n" + reasoning + "\n</thinking>\n\n"
}

func contentText(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	return ""
}

func printToolCall(call model.ToolCall) {
	payload, err := json.Marshal(map[string]any{
		"id":        call.ID,
		"name":      call.Function.Name,
		"arguments": json.RawMessage(call.Function.Arguments),
	})
	if err != nil {
		fmt.Printf("[tool_call %s %s(%s)]\n", call.ID, call.Function.Name, call.Function.Arguments)
		return
	}
	fmt.Printf("[tool_call] %s\n", payload)
}
