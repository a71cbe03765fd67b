package stdlib

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"filippo.io/edwards25519"

	"github.com/Xarvie/sptscript/internal/value"
	"github.com/Xarvie/sptscript/internal/vm"
)

// registerCrypto installs the `crypto` module table (§11): sign/verify back
// onto crypto/ed25519, scalarAdd exercises filippo.io/edwards25519 directly.
func registerCrypto(v *vm.VM) {
	t := newModuleTable(v, "crypto")
	t.fn("keypair", 0, false, nativeCryptoKeypair)
	t.fn("sign", 2, false, nativeCryptoSign)
	t.fn("verify", 3, false, nativeCryptoVerify)
	t.fn("scalarAdd", 2, false, nativeCryptoScalarAdd)
}

// crypto.keypair() returns [publicKeyHex, privateKeyHex]. ed25519 key
// generation and signing have no lower-level primitive in the pack's
// edwards25519 package to build from (it exposes curve scalar/point
// arithmetic, not a signing scheme), so keypair, sign and verify lean on
// the standard library's crypto/ed25519 rather than reimplementing RFC 8032.
func nativeCryptoKeypair(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return value.Nil(), err
	}
	result := ctx.NewList(2)
	list := result.AsListObj()
	list.Elements = append(list.Elements, ctx.NewString(hex.EncodeToString(pub)))
	list.Elements = append(list.Elements, ctx.NewString(hex.EncodeToString(priv)))
	return result, nil
}

func nativeCryptoSign(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	privHex, err := wantString("crypto.sign", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	message, err := wantString("crypto.sign", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	priv, err := hex.DecodeString(privHex)
	if err != nil || len(priv) != ed25519.PrivateKeySize {
		return value.Nil(), typeErr("crypto.sign", "invalid private key")
	}
	sig := ed25519.Sign(ed25519.PrivateKey(priv), []byte(message))
	return ctx.NewString(hex.EncodeToString(sig)), nil
}

func nativeCryptoVerify(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	pubHex, err := wantString("crypto.verify", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	message, err := wantString("crypto.verify", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	sigHex, err := wantString("crypto.verify", args, 2)
	if err != nil {
		return value.Nil(), err
	}
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return value.Nil(), typeErr("crypto.verify", "invalid public key")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return value.Nil(), typeErr("crypto.verify", "invalid signature encoding")
	}
	return value.Bool(ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)), nil
}

// crypto.scalarAdd adds two little-endian hex-encoded Ed25519 scalars mod
// the group order, the building block a key-blinding or threshold-signing
// protocol layers on top of (§11's edwards25519 wiring).
func nativeCryptoScalarAdd(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	aHex, err := wantString("crypto.scalarAdd", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	bHex, err := wantString("crypto.scalarAdd", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	aBytes, err := decodeScalar(aHex)
	if err != nil {
		return value.Nil(), typeErr("crypto.scalarAdd", "argument 0: %s", err)
	}
	bBytes, err := decodeScalar(bHex)
	if err != nil {
		return value.Nil(), typeErr("crypto.scalarAdd", "argument 1: %s", err)
	}
	a, err := edwards25519.NewScalar().SetCanonicalBytes(aBytes)
	if err != nil {
		return value.Nil(), typeErr("crypto.scalarAdd", "argument 0 is not a canonical scalar")
	}
	b, err := edwards25519.NewScalar().SetCanonicalBytes(bBytes)
	if err != nil {
		return value.Nil(), typeErr("crypto.scalarAdd", "argument 1 is not a canonical scalar")
	}
	sum := edwards25519.NewScalar().Add(a, b)
	return ctx.NewString(hex.EncodeToString(sum.Bytes())), nil
}

func decodeScalar(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, errScalarLength
	}
	return b, nil
}

var errScalarLength = errors.New("scalar must be 32 bytes")
