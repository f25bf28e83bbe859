package server

type echoCodec struct{}

func (echoCodec) DecodeRequest(v interface{}) (string, error)  { return v.(string), nil }
func (echoCodec) EncodeResponse(resp string) (interface{}, error) { return resp, nil }
