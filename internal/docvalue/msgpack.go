package docvalue

import "github.com/vmihailenco/msgpack/v5"

// EncodeMsgpack and DecodeMsgpack let Value round-trip over the peer wire
// protocol (internal/wire) the same way it round-trips over JSON for the
// inbound document API — one document model, two encodings.

func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.Kind {
	case KindNull:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.Bool)
	case KindNumber:
		return enc.EncodeFloat64(v.Number)
	case KindString:
		return enc.EncodeString(v.Str)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.Arr)); err != nil {
			return err
		}
		for _, item := range v.Arr {
			if err := enc.Encode(item); err != nil {
				return err
			}
		}
		return nil
	case KindObject:
		if err := enc.EncodeMapLen(len(v.Obj)); err != nil {
			return err
		}
		for _, k := range v.Keys() {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := enc.Encode(v.Obj[k]); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.EncodeNil()
	}
}

func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	*v = fromAnyMsgpack(raw)
	return nil
}

func fromAnyMsgpack(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case int8:
		return Number(float64(t))
	case int16:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint8:
		return Number(float64(t))
	case uint16:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case float32:
		return Number(float64(t))
	case float64:
		return Number(t)
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = fromAnyMsgpack(it)
		}
		return Value{Kind: KindArray, Arr: items}
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, vv := range t {
			obj[k] = fromAnyMsgpack(vv)
		}
		return Value{Kind: KindObject, Obj: obj}
	default:
		return Null()
	}
}
