/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package card

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"testing"
)

func TestDecodeImage_Formats(t *testing.T) {
	src := solid(12, 7, color.NRGBA{R: 30, G: 60, B: 90, A: 255})
	var jpg, gf bytes.Buffer
	if err := jpeg.Encode(&jpg, src, nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	if err := gif.Encode(&gf, src, nil); err != nil {
		t.Fatalf("gif encode: %v", err)
	}
	inputs := map[string][]byte{"png": pngBytes(t, src), "jpeg": jpg.Bytes(), "gif": gf.Bytes()}
	for name, b := range inputs {
		img, err := DecodeImage(b, "avatar")
		if err != nil {
			t.Fatalf("%s: decode error: %v", name, err)
		}
		if img.Bounds().Size() != image.Pt(12, 7) {
			t.Fatalf("%s: size = %v", name, img.Bounds().Size())
		}
	}
}

func TestDecodeImage_Failures(t *testing.T) {
	for _, b := range [][]byte{nil, []byte("not an image at all")} {
		_, err := DecodeImage(b, "bubble")
		if !errors.Is(err, ErrDecode) {
			t.Fatalf("expected ErrDecode, got %v", err)
		}
		var ce *Error
		if !errors.As(err, &ce) || ce.Op != "decode bubble" {
			t.Fatalf("unexpected error detail: %v", err)
		}
	}
}
