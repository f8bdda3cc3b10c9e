package copyfmt

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"filmmigrate/internal/record"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	// Delimiter separates columns on a line.
	Delimiter = '|'
	// Null is the COPY text token for a NULL column.
	Null = `\N`
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05.999999-07:00"
)

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	string(Delimiter), `\`+string(Delimiter),
)

// Escape applies COPY text escaping so s occupies a single column on a single line.
func Escape(s string) string {
	return textEscaper.Replace(s)
}

// Encoder renders batches into COPY text blocks, reusing one buffer.
// The zero value is ready to use. An Encoder is not safe for concurrent use.
type Encoder struct {
	buf bytes.Buffer
}

// Encode renders batch as one line per record. The returned slice is only
// valid until the next call to Encode.
func (e *Encoder) Encode(batch []record.Record) ([]byte, error) {
	e.buf.Reset()
	for i, rec := range batch {
		for j, v := range rec.Values() {
			if j > 0 {
				e.buf.WriteByte(Delimiter)
			}
			field, err := FormatValue(v)
			if err != nil {
				return nil, fmt.Errorf("encode %s record %d column %s: %w", rec.Kind(), i, rec.Columns()[j], err)
			}
			e.buf.WriteString(field)
		}
		e.buf.WriteByte('\n')
	}
	return e.buf.Bytes(), nil
}

// EncodeBatch renders batch into a freshly allocated COPY text block.
func EncodeBatch(batch []record.Record) ([]byte, error) {
	var e Encoder
	block, err := e.Encode(batch)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(block), nil
}

// FormatValue renders a single column value. NULL values of any type become
// Null, never an empty string.
func FormatValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return Null, nil
	case uuid.UUID:
		return x.String(), nil
	case string:
		return Escape(x), nil
	case pgtype.Text:
		if !x.Valid {
			return Null, nil
		}
		return Escape(x.String), nil
	case pgtype.Date:
		if !x.Valid {
			return Null, nil
		}
		switch x.InfinityModifier {
		case pgtype.Infinity:
			return "infinity", nil
		case pgtype.NegativeInfinity:
			return "-infinity", nil
		}
		return x.Time.Format(dateLayout), nil
	case pgtype.Timestamptz:
		if !x.Valid {
			return Null, nil
		}
		switch x.InfinityModifier {
		case pgtype.Infinity:
			return "infinity", nil
		case pgtype.NegativeInfinity:
			return "-infinity", nil
		}
		return formatTimestamp(x.Time), nil
	case time.Time:
		return formatTimestamp(x), nil
	case pgtype.Float8:
		if !x.Valid {
			return Null, nil
		}
		return formatFloat(x.Float64), nil
	case float64:
		return formatFloat(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case record.NullFilmType:
		if !x.Valid {
			return Null, nil
		}
		return Escape(string(x.FilmType)), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return "", err
		}
		if _, again := dv.(driver.Valuer); again {
			return "", fmt.Errorf("unsupported value %T", v)
		}
		return FormatValue(dv)
	case []byte:
		if x == nil {
			return Null, nil
		}
		return Escape(string(x)), nil
	default:
		return "", fmt.Errorf("unsupported value %T", v)
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
