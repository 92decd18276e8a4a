package universe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSourceNormalizes(t *testing.T) {
	src := NewStaticSource([]string{" aapl ", "MSFT", "msft", "", "BRK-B"})

	tickers, err := src.Tickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "BRK-B"}, tickers)
}

type countingSource struct {
	calls   int
	tickers []string
	err     error
}

func (c *countingSource) Tickers(ctx context.Context) ([]string, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.tickers, nil
}

func TestCachedSourceFillsOnce(t *testing.T) {
	src := &countingSource{tickers: []string{"AAPL"}}
	cached := NewCachedSource(src)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		tickers, err := cached.Tickers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"AAPL"}, tickers)
	}
	assert.Equal(t, 1, src.calls)
}

func TestCachedSourceRefreshKeepsOldOnFailure(t *testing.T) {
	src := &countingSource{tickers: []string{"AAPL"}}
	cached := NewCachedSource(src)

	ctx := context.Background()
	_, err := cached.Tickers(ctx)
	require.NoError(t, err)

	src.err = assert.AnError
	require.Error(t, cached.Refresh(ctx))

	tickers, err := cached.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, tickers)
}

func TestParseConstituents(t *testing.T) {
	html := `
<html><body>
<table id="constituents" class="wikitable">
<tbody>
<tr><th>Symbol</th><th>Security</th></tr>
<tr><td>MMM</td><td>3M</td></tr>
<tr><td>AAPL</td><td>Apple</td></tr>
<tr><td>BRK.B</td><td>Berkshire Hathaway</td></tr>
<tr><td>AAPL</td><td>Apple duplicate</td></tr>
<tr><td>not a ticker</td><td>junk</td></tr>
</tbody>
</table>
</body></html>`

	tickers, err := parseConstituents([]byte(html))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "BRK-B", "MMM"}, tickers)
}

func TestParseConstituentsFallsBackToWikitable(t *testing.T) {
	html := `
<html><body>
<table class="wikitable">
<tbody>
<tr><th>Symbol</th></tr>
<tr><td>NVDA</td></tr>
</tbody>
</table>
</body></html>`

	tickers, err := parseConstituents([]byte(html))
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA"}, tickers)
}

func TestParseConstituentsNoTable(t *testing.T) {
	_, err := parseConstituents([]byte(`<html><body><p>nothing here</p></body></html>`))
	assert.Error(t, err)
}
