package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"pos_report/internal/sales"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSV 编码：Excel 直接打开 UTF-8 CSV 需要 BOM，旧版中文 Excel 需要 GBK。
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF8BOM = "utf-8-bom"
	EncodingGBK     = "gbk"
)

func encoderFor(name string) (encoding.Encoding, error) {
	switch name {
	case "", EncodingUTF8:
		return nil, nil
	case EncodingUTF8BOM:
		return unicode.UTF8BOM, nil
	case EncodingGBK:
		return simplifiedchinese.GBK, nil
	default:
		return nil, fmt.Errorf("unsupported csv encoding %q", name)
	}
}

// WriteCSV 写表头与全部行。
func WriteCSV(w io.Writer, rows []sales.Row, loc *time.Location, enc string) error {
	e, err := encoderFor(enc)
	if err != nil {
		return err
	}
	out := w
	var tw *transform.Writer
	if e != nil {
		tw = transform.NewWriter(w, e.NewEncoder())
		out = tw
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(sales.ExportColumns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(Record(r, loc)); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if tw != nil {
		return tw.Close()
	}
	return nil
}
