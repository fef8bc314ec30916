package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Two console themes, selected via log.theme. Kept deliberately small: this
// is a calm status console for a network daemon, not a UI.
const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

type palette struct {
	fg, id, num, warn, warnBg, err, errBg string
}

var (
	slate = palette{
		fg: "\x1b[38;5;109m", id: "\x1b[38;5;108m", num: "\x1b[38;5;142m",
		warn: "\x1b[38;5;214m", warnBg: "\x1b[48;5;58m",
		err: "\x1b[38;5;167m", errBg: "\x1b[48;5;52m",
	}
	amber = palette{
		fg: "\x1b[38;5;223m", id: "\x1b[38;5;208m", num: "\x1b[38;5;175m",
		warn: "\x1b[38;5;214m", warnBg: "\x1b[48;5;58m",
		err: "\x1b[38;5;167m", errBg: "\x1b[48;5;88m",
	}
)

var currentTheme = "slate"

// SetTheme selects the console color palette. Unknown names fall back to
// "slate" silently — a bad config value for cosmetics shouldn't crash startup.
func SetTheme(theme string) {
	if theme == "amber" {
		currentTheme = "amber"
		return
	}
	currentTheme = "slate"
}

func colors() palette {
	if currentTheme == "amber" {
		return amber
	}
	return slate
}

// minimalEncoder renders one calm line per entry:
// "15:04:05.000  ticket dispatched  plate=UN1X road=123"
// A WARN/ERROR tag follows the time for those levels. Only the fields passed
// with the call itself are rendered; fields attached earlier with With (such
// as the component set by Named) are not.
type minimalEncoder struct {
	zapcore.Encoder
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())}
}

func (e *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{Encoder: e.Encoder.Clone()}
}

func (e *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	c := colors()
	buf := buffer.NewPool().Get()

	buf.AppendString(c.fg)
	buf.AppendString(ent.Time.Format("15:04:05.000"))
	buf.AppendString(colorReset)

	if lvl := levelTag(ent.Level, c); lvl != "" {
		buf.AppendString("  ")
		buf.AppendString(lvl)
	}

	if ent.LoggerName != "" {
		buf.AppendString("  ")
		buf.AppendString(c.id)
		buf.AppendString(ent.LoggerName)
		buf.AppendString(colorReset)
	}

	buf.AppendString("  ")
	buf.AppendString(ent.Message)

	if rendered := renderFields(fields, c); rendered != "" {
		buf.AppendString("  ")
		buf.AppendString(rendered)
	}
	buf.AppendString("\n")
	return buf, nil
}

func levelTag(level zapcore.Level, c palette) string {
	switch level {
	case zapcore.WarnLevel:
		return colorBold + c.warnBg + c.warn + "WARN" + colorReset
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return colorBold + c.errBg + c.err + level.CapitalString() + colorReset
	default:
		return ""
	}
}

func renderFields(fields []zapcore.Field, c palette) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Key+"="+c.num+fieldValue(f)+colorReset)
	}
	return strings.Join(parts, " ")
}

func fieldValue(f zapcore.Field) string {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", f.Integer)
	case zapcore.BoolType:
		return fmt.Sprintf("%t", f.Integer == 1)
	default:
		if f.Interface != nil {
			return fmt.Sprintf("%v", f.Interface)
		}
		return f.String
	}
}
