package stdlib

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Xarvie/sptscript/internal/value"
	"github.com/Xarvie/sptscript/internal/vm"
)

// registerHumanize installs the `humanize` module table (§11) for scripts.
// bytesToString shares humanize.Bytes with FormatBytes, which backs the
// module manager's cache-stats formatting.
func registerHumanize(v *vm.VM) {
	t := newModuleTable(v, "humanize")
	t.fn("bytesToString", 1, false, nativeHumanizeBytes)
	t.fn("duration", 1, false, nativeHumanizeDuration)
	t.fn("relativeTime", 1, false, nativeHumanizeTime)
	t.fn("comma", 1, false, nativeHumanizeComma)
	t.fn("ordinal", 1, false, nativeHumanizeOrdinal)
}

func nativeHumanizeBytes(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	n, err := wantInt("humanize.bytesToString", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return ctx.NewString(humanize.Bytes(uint64(n))), nil
}

// nativeHumanizeDuration renders a count of seconds as "2h3m0s"-style text.
func nativeHumanizeDuration(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	sec, err := wantFloat("humanize.duration", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	d := time.Duration(sec * float64(time.Second))
	return ctx.NewString(d.String()), nil
}

// nativeHumanizeTime renders a unix-second timestamp relative to now, e.g.
// "3 hours ago".
func nativeHumanizeTime(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	sec, err := wantInt("humanize.relativeTime", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return ctx.NewString(humanize.Time(time.Unix(sec, 0))), nil
}

func nativeHumanizeComma(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	n, err := wantInt("humanize.comma", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return ctx.NewString(humanize.Comma(n)), nil
}

func nativeHumanizeOrdinal(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	n, err := wantInt("humanize.ordinal", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return ctx.NewString(humanize.Ordinal(int(n))), nil
}

// FormatBytes is a host-side convenience wrapping humanize.Bytes, used by
// internal/module's cache-stats dump (§4.7, §11) without round-tripping
// through a native call.
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
