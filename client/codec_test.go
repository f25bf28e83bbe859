package client

// echoCodec is a trivial Codec used across client tests: requests and
// responses are both strings, carried verbatim through channel.Msg.Value.
type echoCodec struct{}

func (echoCodec) Encode(req string) (interface{}, error) { return req, nil }
func (echoCodec) Decode(v interface{}) (string, error)    { return v.(string), nil }
