package domain

import "strings"

type Book struct {
	ISBN      string `json:"isbn" validate:"notblank,max=32"`
	Title     string `json:"title" validate:"notblank,max=500"`
	Author    string `json:"author" validate:"notblank,max=255"`
	Genre     string `json:"genre,omitempty" validate:"max=64"`
	Available bool   `json:"available"`
}

// Key normalizes an ISBN or user id. Every lookup and every insert goes
// through it, so " 1111 " and "1111" name the same book.
func Key(s string) string { return strings.TrimSpace(s) }
