package activity

import (
	"go.uber.org/zap/zapcore"
)

// Field keys picked out of log lines.
const (
	KeyTarget = "target"
	KeyItemID = "item_id"
	KeyError  = "error"
)

type core struct {
	zapcore.LevelEnabler
	log    *Log
	fields []zapcore.Field
}

// NewCore returns a core that copies log lines into l. Warnings and errors
// are always recorded; lower levels only when they carry target or item
// context, so request logs do not crowd out pipeline events.
func NewCore(l *Log, level zapcore.LevelEnabler) zapcore.Core {
	return &core{LevelEnabler: level, log: l}
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	e := Entry{
		Time:    ent.Time,
		Level:   ent.Level.String(),
		Message: ent.Message,
		Target:  stringField(enc, KeyTarget),
		ItemID:  stringField(enc, KeyItemID),
		Error:   stringField(enc, KeyError),
	}
	if ent.Level < zapcore.WarnLevel && e.Target == "" && e.ItemID == "" {
		return nil
	}
	c.log.Append(e)
	return nil
}

func (c *core) Sync() error { return nil }

func stringField(enc *zapcore.MapObjectEncoder, key string) string {
	if s, ok := enc.Fields[key].(string); ok {
		return s
	}
	return ""
}
