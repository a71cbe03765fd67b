package stdlib

import (
	"github.com/google/uuid"

	"github.com/Xarvie/sptscript/internal/value"
	"github.com/Xarvie/sptscript/internal/vm"
)

func registerUUID(v *vm.VM) {
	v.RegisterNative("uuid_v4", 0, false, nativeUUIDv4)
	v.RegisterNative("uuid_parse", 1, false, nativeUUIDParse)
}

func nativeUUIDv4(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	return ctx.NewString(uuid.NewString()), nil
}

func nativeUUIDParse(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	s, err := wantString("uuid_parse", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return value.Nil(), typeErr("uuid_parse", "%q is not a valid uuid", s)
	}
	return ctx.NewString(id.String()), nil
}
