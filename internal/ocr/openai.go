package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const openAIDefaultModel = "gpt-4o-mini"

// pageSchema constrains the model's per-page response. The response is
// validated locally rather than trusting the model to honor the prompt.
const pageSchema = `{
  "type": "object",
  "properties": {
    "text": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 100}
  },
  "required": ["text", "confidence"],
  "additionalProperties": false
}`

const recognizePrompt = `You are an OCR engine for scanned Hebrew religious texts (seforim).
Transcribe ALL text visible in this page image exactly as printed, including
nikud if present. Preserve the reading order of the original layout.

Respond with ONLY a JSON object matching this schema, no markdown, no commentary:
` + pageSchema + `

"text" is the full transcription. "confidence" is your 0-100 estimate of
transcription accuracy.`

// OpenAIConfig holds configuration for the OpenAI OCR engine.
type OpenAIConfig struct {
	APIKey     string
	Model      string        // "gpt-4o-mini" (default); must be a vision-capable model
	RenderDPI  int           // Page rasterization resolution, 300 by default
	Timeout    time.Duration // HTTP timeout per request
	MaxRetries int           // Retry attempts for SDK transport
	HTTPClient *http.Client  // Optional (tests)
	Logger     *slog.Logger
}

// OpenAIEngine implements Engine using a vision-capable chat model through
// the official OpenAI SDK. Pages are rasterized with pdftoppm
// (poppler-utils) and sent as inline PNG images.
type OpenAIEngine struct {
	model  string
	dpi    int
	client openai.Client
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewOpenAIEngine creates a new OpenAI OCR engine.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = 300
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("page.json", strings.NewReader(pageSchema)); err != nil {
		return nil, fmt.Errorf("failed to load page schema: %w", err)
	}
	schema, err := compiler.Compile("page.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile page schema: %w", err)
	}

	return &OpenAIEngine{
		model:  cfg.Model,
		dpi:    cfg.RenderDPI,
		client: openai.NewClient(opts...),
		schema: schema,
		logger: logger.With("component", "ocr"),
	}, nil
}

// Recognize rasterizes each requested page and transcribes it. A page
// that fails to render or transcribe is logged and skipped so one bad
// page does not sink the document; callers align results by PageNumber.
func (e *OpenAIEngine) Recognize(ctx context.Context, pdf []byte, pageNumbers []int) ([]PageResult, error) {
	tmpDir, err := os.MkdirTemp("", "folio-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "document.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	results := make([]PageResult, 0, len(pageNumbers))
	for _, pageNum := range pageNumbers {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		result, err := e.recognizePage(ctx, pdfPath, tmpDir, pageNum)
		if err != nil {
			e.logger.Warn("page OCR failed, skipping", "page", pageNum, "error", err)
			continue
		}
		results = append(results, result)
	}

	return results, nil
}

// recognizePage renders one page to PNG and asks the model for a
// transcription.
func (e *OpenAIEngine) recognizePage(ctx context.Context, pdfPath, tmpDir string, pageNum int) (PageResult, error) {
	image, err := e.renderPage(ctx, pdfPath, tmpDir, pageNum)
	if err != nil {
		return PageResult{}, err
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(recognizePrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	})
	if err != nil {
		return PageResult{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return PageResult{}, fmt.Errorf("chat completion returned no choices")
	}

	return e.parsePage(resp.Choices[0].Message.Content, pageNum)
}

// renderPage rasterizes a single page using pdftoppm (poppler-utils).
func (e *OpenAIEngine) renderPage(ctx context.Context, pdfPath, tmpDir string, pageNum int) ([]byte, error) {
	outputPrefix := filepath.Join(tmpDir, fmt.Sprintf("page_%d", pageNum))

	// -png: output PNG format
	// -f/-l N: render only page N
	// -r: resolution in DPI
	// -singlefile: don't add page number suffix
	pageStr := strconv.Itoa(pageNum)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(e.dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}

// parsePage extracts and validates the model's JSON response.
func (e *OpenAIEngine) parsePage(content string, pageNum int) (PageResult, error) {
	raw := extractJSONBlock(content)
	if raw == "" {
		return PageResult{}, fmt.Errorf("no JSON object in model response")
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return PageResult{}, fmt.Errorf("failed to parse model response: %w", err)
	}
	if err := e.schema.Validate(doc); err != nil {
		return PageResult{}, fmt.Errorf("model response does not match schema: %w", err)
	}

	var page struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		return PageResult{}, fmt.Errorf("failed to decode model response: %w", err)
	}

	return PageResult{
		PageNumber: pageNum,
		Text:       page.Text,
		Confidence: page.Confidence,
	}, nil
}

// extractJSONBlock returns the outermost JSON object in text, tolerating
// markdown code fences around it.
func extractJSONBlock(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if end := strings.LastIndex(trimmed, "```"); end >= 0 {
			trimmed = trimmed[:end]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}
