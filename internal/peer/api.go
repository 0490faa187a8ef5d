package peer

import (
	"github.com/pion/webrtc/v4"
)

// NewAPI builds a webrtc.API with the default audio/video codecs registered.
// Sessions sharing an API share its media engine, so callers that need
// custom interceptors or network settings should build their own.
func NewAPI() (*webrtc.API, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(me)), nil
}
