package api

import (
	"fmt"
	"net/http"
	"time"

	"gestionale/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// ExportIncassi writes the filtered revenue rows as an XLSX download, for
// operators reconciling against the portal by hand.
func (h *APIHandler) ExportIncassi(c *gin.Context) {
	if !h.apiKeyOK(c) && h.operatorClaims(c) == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Non autorizzato"})
		return
	}

	rows, err := h.store.ListIncassi(store.IncassoFilter{
		PuntoVenditaID: c.Query("puntoVenditaId"),
		From:           parseDay(c.Query("from")),
		To:             parseDay(c.Query("to")),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Incassi"
	f.SetSheetName("Sheet1", sheet)
	headers := []string{"Data", "Importo", "Punto vendita", "Fonte", "Note"}
	for i, head := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, head)
	}

	for i, row := range rows {
		nome := row.PuntoVenditaID
		if row.PuntoVendita != nil {
			nome = row.PuntoVendita.Nome
		}
		note := ""
		if row.Note != nil {
			note = *row.Note
		}
		values := []interface{}{row.Data.Format("2006-01-02"), row.Importo, nome, row.Fonte, note}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	filename := fmt.Sprintf("incassi-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}
