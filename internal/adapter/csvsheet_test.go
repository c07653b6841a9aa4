package adapter

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantNames []string
		wantQty   []int
		wantPrice []string
		wantErr   bool
	}{
		{
			name:      "with header",
			input:     "SKU,Qty,Name,Unit Price\nA-1,2,Shoes,80\nB-2,,Socks,\n",
			wantNames: []string{"Shoes", "Socks"},
			wantQty:   []int{2, 1},
			wantPrice: []string{"80.00", "0.00"},
		},
		{
			name:      "positional",
			input:     "Shoes,A-1,2,80.5\n\nSocks,B-2,1,\"10,25\"\n",
			wantNames: []string{"Shoes", "Socks"},
			wantQty:   []int{2, 1},
			wantPrice: []string{"80.50", "10.25"},
		},
		{
			name:    "bad quantity",
			input:   "name,sku,quantity,price\nShoes,A-1,two,80\n",
			wantErr: true,
		},
		{
			name:    "bad price",
			input:   "name,sku,quantity,price\nShoes,A-1,2,cheap\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet, err := ReadCSV(strings.NewReader(tt.input))
			require.NoError(t, err)

			items, err := sheet.ReadLineItems(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, items, len(tt.wantNames))

			for i, item := range items {
				assert.Equal(t, tt.wantNames[i], item.Name)
				assert.Equal(t, tt.wantQty[i], item.Quantity)
				assert.Equal(t, tt.wantPrice[i], item.UnitPrice.StringFixed(2))
			}
		})
	}
}

func TestCSVSheetRun(t *testing.T) {
	input := "name,sku,quantity,price\nJacket,J-1,1,300\nGift,G-1,1,0\nShort,S-1\n"
	sheet, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	sheet.Currency = "€"

	assert.Empty(t, sheet.Report())

	_, err = Run(context.Background(), sheet, newCalculator())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, sheet.Encode(&buf))
	assert.Equal(t, "name,sku,quantity,price\nJacket,J-1,1,50.00\nGift,G-1,1,1.00\nShort,S-1,,1.00\n", buf.String())

	assert.Contains(t, sheet.Report(), "Final: 52.00€")
}

func TestCSVSheetFailureLeavesRowsUntouched(t *testing.T) {
	input := "name,sku,quantity,price\nPhone,P-1,30000,40\n"
	sheet, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	_, err = Run(context.Background(), sheet, newCalculator())
	require.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, sheet.Encode(&buf))
	assert.Equal(t, input, buf.String())
	assert.Contains(t, sheet.Report(), "ERROR")
}

func TestWriteUnitPriceOutOfRange(t *testing.T) {
	sheet, err := ReadCSV(strings.NewReader("a,b,1,2\n"))
	require.NoError(t, err)
	assert.Error(t, sheet.WriteUnitPrice(context.Background(), 3, newCalculator().Limits().MaxTotal))
}
