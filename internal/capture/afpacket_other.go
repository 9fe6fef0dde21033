//go:build !linux

package capture

import "errors"

func openAFPacket(device string, opts Options) (Source, error) {
	return nil, errors.New("afpacket capture is only available on linux")
}
