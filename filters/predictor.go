package filters

import (
	"fmt"

	"github.com/YanSamuray/cpf-censoring/ir/raw"
)

// applyPredictor undoes the prediction step declared in DecodeParms.
// Predictor 1 is identity, 2 is TIFF horizontal differencing, 10-15 are
// the PNG row predictors (the value only announces PNG; each row carries
// its own predictor byte).
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	predictor := paramInt(params, "Predictor", 1)
	if predictor == 1 {
		return data, nil
	}
	columns := paramInt(params, "Columns", 1)
	colors := paramInt(params, "Colors", 1)
	bpc := paramInt(params, "BitsPerComponent", 8)
	if bpc != 8 {
		return nil, fmt.Errorf("predictor with %d bits per component is not supported", bpc)
	}
	switch {
	case predictor == 2:
		return undoTIFFPredictor(data, columns, colors)
	case predictor >= 10 && predictor <= 15:
		return undoPNGPredictor(data, columns, colors)
	}
	return nil, fmt.Errorf("unsupported predictor %d", predictor)
}

func undoTIFFPredictor(data []byte, columns, colors int) ([]byte, error) {
	rowSize := columns * colors
	if rowSize <= 0 || len(data)%rowSize != 0 {
		return nil, fmt.Errorf("data size %d is not a multiple of row size %d", len(data), rowSize)
	}
	out := make([]byte, len(data))
	copy(out, data)
	for row := 0; row < len(data)/rowSize; row++ {
		base := row * rowSize
		for i := colors; i < rowSize; i++ {
			out[base+i] += out[base+i-colors]
		}
	}
	return out, nil
}

func undoPNGPredictor(data []byte, columns, colors int) ([]byte, error) {
	rowSize := columns * colors
	if rowSize <= 0 || len(data)%(rowSize+1) != 0 {
		return nil, fmt.Errorf("data size %d does not fit rows of %d+1 bytes", len(data), rowSize)
	}
	numRows := len(data) / (rowSize + 1)
	out := make([]byte, numRows*rowSize)
	prev := make([]byte, rowSize)
	for row := 0; row < numRows; row++ {
		ft := data[row*(rowSize+1)]
		src := data[row*(rowSize+1)+1 : (row+1)*(rowSize+1)]
		dst := out[row*rowSize : (row+1)*rowSize]
		if err := undoPNGRow(ft, src, dst, prev, colors); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		prev = dst
	}
	return out, nil
}

func undoPNGRow(filterType byte, src, dst, prev []byte, bpp int) error {
	for i := range src {
		var left, up, upLeft byte
		if i >= bpp {
			left = dst[i-bpp]
			upLeft = prev[i-bpp]
		}
		up = prev[i]
		switch filterType {
		case 0:
			dst[i] = src[i]
		case 1:
			dst[i] = src[i] + left
		case 2:
			dst[i] = src[i] + up
		case 3:
			dst[i] = src[i] + byte((int(left)+int(up))/2)
		case 4:
			dst[i] = src[i] + paeth(left, up, upLeft)
		default:
			return fmt.Errorf("unknown PNG row filter %d", filterType)
		}
	}
	return nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
