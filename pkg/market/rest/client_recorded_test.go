package rest

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"

	"marketpulse/pkg/market/exchanges"
)

// This test uses go-vcr to record/replay a real Binance kline call.
// It skips by default if cassette is absent and RECORD_CASSETTES != 1.
func TestClient_GetKlines_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "binance_klines.yaml")
	if _, err := os.Stat(cassette); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassette)
		}
		// Ensure parent directory exists for recording
		err := os.MkdirAll(filepath.Dir(cassette), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassette)
	assert.NoError(t, err, "recorder.New should not error")
	assert.NotNil(t, r, "recorder should not be nil")
	defer func() { _ = r.Stop() }()

	httpClient := &http.Client{Transport: r}
	client := NewClient(exchanges.Select("binance", ""), WithHTTPClient(httpClient))
	ctx := context.Background()
	klines, err := client.GetKlines(ctx, "BTCUSDT", "3m", 30)
	assert.NoError(t, err, "GetKlines should not error")
	assert.NotEmpty(t, klines, "klines should not be empty")
	if len(klines) > 1 {
		assert.Less(t, klines[0].OpenTime, klines[len(klines)-1].OpenTime, "klines should be oldest first")
		assert.Greater(t, klines[len(klines)-1].Close, 0.0, "close should be positive")
	}
}
