/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import "strings"

// Wrap breaks text into lines no wider than maxWidth as reported by m.
//
// Words are separated by whitespace and kept intact, punctuation included.
// Each tentative line is measured with a single trailing separator; once that
// exceeds maxWidth the accumulated line is flushed and the word starts the
// next one. A word that alone is wider than maxWidth still gets its own line.
// Empty or whitespace-only text yields no lines.
func Wrap(text string, maxWidth int, m Measurer) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	cur := ""
	for _, w := range words {
		test := cur + w + " "
		if cur != "" && m.Width(test) > maxWidth {
			lines = append(lines, strings.TrimSpace(cur))
			cur = w + " "
			continue
		}
		cur = test
	}
	if cur != "" {
		lines = append(lines, strings.TrimSpace(cur))
	}
	return lines
}
