// Copyright 2026 The Heimdall Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package oauth2

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE code challenge methods (RFC 7636)
const (
	CodeChallengeMethodPlain = "plain"
	CodeChallengeMethodS256  = "S256"
)

// ValidCodeChallengeMethod reports whether method is supported
func ValidCodeChallengeMethod(method string) bool {
	return method == CodeChallengeMethodPlain || method == CodeChallengeMethodS256
}

// ComputeCodeChallenge derives the challenge for a verifier under the
// given method. S256 is base64url(sha256(verifier)) without padding.
func ComputeCodeChallenge(verifier, method string) string {
	if method == CodeChallengeMethodS256 {
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:])
	}
	return verifier
}

// VerifyPKCE checks a code verifier against the challenge recorded at
// authorization time. RFC 7636 bounds verifiers to 43-128 characters;
// anything outside that range fails before any comparison.
func VerifyPKCE(verifier, challenge, method string) bool {
	if len(verifier) < 43 || len(verifier) > 128 {
		return false
	}
	derived := ComputeCodeChallenge(verifier, method)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}
