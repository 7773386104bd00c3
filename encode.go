package main

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"image"
	"image/jpeg"
)

var jpegOptions = jpeg.Options{Quality: 90}

// thumbnails are always served as jpeg whatever the source format
type thumbnail struct {
	Data []byte
	Etag string
}

func encodeThumbnail(img image.Image) (thumbnail, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpegOptions); err != nil {
		return thumbnail{}, err
	}
	data := buf.Bytes()
	return thumbnail{Data: data, Etag: fmt.Sprintf("%x", sha1.Sum(data))}, nil
}
