/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package card

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/nfnt/resize"
)

// MaskAvatar scales img to size x size and cuts it to a circle. The circle's
// anti-aliased coverage becomes the alpha channel; whatever alpha the source
// had is discarded.
func MaskAvatar(img image.Image, size int) (*image.NRGBA, error) {
	if img == nil {
		return nil, renderErr("mask avatar", errors.New("nil image"))
	}
	if size <= 0 {
		return nil, renderErr("mask avatar", fmt.Errorf("size must be positive, got %d", size))
	}
	scaled := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	sb := scaled.Bounds()
	mask := circleMask(size)

	out := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBAModel.Convert(scaled.At(sb.Min.X+x, sb.Min.Y+y)).(color.NRGBA)
			c.A = mask.AlphaAt(x, y).A
			out.SetNRGBA(x, y, c)
		}
	}
	return out, nil
}

func circleMask(size int) *image.Alpha {
	dc := gg.NewContext(size, size)
	r := float64(size) / 2
	dc.DrawCircle(r, r, r)
	dc.Fill()
	return dc.AsMask()
}
