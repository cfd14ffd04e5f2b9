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
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeImage decodes any registered raster format. what names the input in
// the error ("avatar", "bubble").
func DecodeImage(b []byte, what string) (image.Image, error) {
	op := "decode " + what
	if len(b) == 0 {
		return nil, decodeErr(op, errors.New("empty input"))
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, decodeErr(op, err)
	}
	if r := img.Bounds(); r.Empty() {
		return nil, decodeErr(op, fmt.Errorf("image has no pixels (%v)", r))
	}
	return img, nil
}
