package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
)

// MockProvider returns deterministic placeholder URLs without any network
// call. It keeps the worker fully operational in local and CI environments.
type MockProvider struct {
	baseURL string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{baseURL: "https://placehold.co"}
}

func (p *MockProvider) Name() string { return string(infra.ProviderMock) }

func (p *MockProvider) Generate(ctx context.Context, req Request) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	count := clampVariants(req.Variants)
	if req.MediaType == domain.MediaTypeVideo {
		count = 1
	}
	width, height := normalizeAspect(req.AspectRatio)
	results := make([]Result, 0, count)
	for i := 0; i < count; i++ {
		seed := deterministicSeed(req.AdID, req.Prompt, req.MediaType, i)
		ext := "png"
		if req.MediaType == domain.MediaTypeVideo {
			ext = "mp4"
		}
		results = append(results, Result{
			URL: fmt.Sprintf("%s/%dx%d.%s?text=%s", p.baseURL, width, height, ext, seed),
			Metadata: map[string]any{
				"provider": p.Name(),
				"width":    width,
				"height":   height,
				"seed":     seed,
			},
		})
	}
	return results, nil
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

func normalizeAspect(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9":
		return 1920, 1080
	case "9:16":
		return 1080, 1920
	case "4:5":
		return 1024, 1280
	case "3:2":
		return 1536, 1024
	case "1:1", "square", "":
		return 1024, 1024
	default:
		parts := strings.Split(aspect, ":")
		if len(parts) == 2 {
			if a, errA := strconv.Atoi(strings.TrimSpace(parts[0])); errA == nil {
				if b, errB := strconv.Atoi(strings.TrimSpace(parts[1])); errB == nil && a > 0 && b > 0 {
					width := 1024
					return width, int(float64(width) * float64(b) / float64(a))
				}
			}
		}
		return 1024, 1024
	}
}
