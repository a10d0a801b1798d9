package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const incassiTableHTML = `
<html><body>
<table class="table">
  <thead><tr><th>Data</th><th>Incasso</th></tr></thead>
  <tbody>
    <tr><td>2026-02-01</td><td>120,50</td></tr>
    <tr><td>31/01/2026</td><td>1.234,56</td></tr>
    <tr><td>Totale</td><td></td><td>1.355,06</td></tr>
    <tr><td></td><td></td></tr>
  </tbody>
</table>
</body></html>`

func TestParseIncassiHTML(t *testing.T) {
	righe, err := ParseIncassiHTML(incassiTableHTML)
	require.NoError(t, err)
	require.Len(t, righe, 3)

	assert.Equal(t, RigaIncasso{Data: "2026-02-01", Importo: "120,50"}, righe[0])
	assert.Equal(t, RigaIncasso{Data: "31/01/2026", Importo: "1.234,56"}, righe[1])
	// amount falls back to the third cell when the second is empty
	assert.Equal(t, RigaIncasso{Data: "Totale", Importo: "1.355,06"}, righe[2])
}

func TestParseIncassiHTMLNoTable(t *testing.T) {
	righe, err := ParseIncassiHTML("<html><body><p>nessun dato</p></body></html>")
	require.NoError(t, err)
	assert.Empty(t, righe)
}
