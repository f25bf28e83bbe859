package main

// lineCodec carries plain strings across the wire unchanged; the gob
// framing in channel.NewStream already handles the interface{} boxing, so
// there is nothing left for this demo's Codec to do beyond the type
// assertion.
type lineCodec struct{}

func (lineCodec) Encode(req string) (interface{}, error) { return req, nil }
func (lineCodec) Decode(v interface{}) (string, error)    { return v.(string), nil }

func (lineCodec) DecodeRequest(v interface{}) (string, error)     { return v.(string), nil }
func (lineCodec) EncodeResponse(resp string) (interface{}, error) { return resp, nil }
