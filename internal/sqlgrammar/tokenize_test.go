package sqlgrammar

import (
	"reflect"
	"testing"
)

func TestTokenizeSplitsOnWhitespace(t *testing.T) {
	got := Tokenize("SELECT * FROM users")
	want := []string{"SELECT", "*", "FROM", "users"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenizeKeepsQuotedStringIntact(t *testing.T) {
	got := Tokenize(`INSERT users 1 "alice smith" 30`)
	want := []string{"INSERT", "users", "1", `"alice smith"`, "30"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenizeHandlesEscapedQuote(t *testing.T) {
	got := Tokenize(`"she said \"hi\""`)
	want := []string{`"she said \"hi\""`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenizeKeepsVectorLiteralIntact(t *testing.T) {
	got := Tokenize("INSERT docs 1 [1, 2, 3]")
	want := []string{"INSERT", "docs", "1", "[1, 2, 3]"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenizeKeepsJSONLiteralIntact(t *testing.T) {
	got := Tokenize(`JSON.SET doc $ {"a": 1, "b": 2}`)
	want := []string{"JSON.SET", "doc", "$", `{"a": 1, "b": 2}`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenizeSplitsPunctuation(t *testing.T) {
	got := Tokenize("WHERE age>=18 AND name=bob")
	want := []string{"WHERE", "age", ">=", "18", "AND", "name", "=", "bob"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenizeParensAndCommas(t *testing.T) {
	got := Tokenize("WHERE age IN (1, 2, 3)")
	want := []string{"WHERE", "age", "IN", "(", "1", ",", "2", ",", "3", ")"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenizeArrowNotation(t *testing.T) {
	got := Tokenize("SELECT data->profile->name FROM docs")
	want := []string{"SELECT", "data->profile->name", "FROM", "docs"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
