// Package idgen generates event tokens backed by nanoid.
//
// Tokens double as store keys and bus topics, so the alphabet never contains
// '.', '*', '>', '/' or whitespace.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet defines the character set used for every token.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// PublicLength is the length of a public (viewer) token.
var PublicLength = 10

// ModeratorLength is the length of a moderator token. Moderator tokens are
// secrets, so they are longer than public ones.
var ModeratorLength = 24

// PublicToken returns a new public event token.
func PublicToken() (string, error) {
	return generate(PublicLength)
}

// ModeratorToken returns a new moderator token.
func ModeratorToken() (string, error) {
	return generate(ModeratorLength)
}

// Pair returns a fresh public and moderator token.
func Pair() (public, moderator string, err error) {
	if public, err = PublicToken(); err != nil {
		return "", "", err
	}
	if moderator, err = ModeratorToken(); err != nil {
		return "", "", err
	}
	return public, moderator, nil
}

func generate(n int) (string, error) {
	id, err := nanoid.Generate(Alphabet, n)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return id, nil
}
