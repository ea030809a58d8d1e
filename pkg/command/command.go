// Package command parses free-text activity log commands.
package command

import (
	"strings"
	"unicode"
)

// Category is the canonical activity a command records.
type Category string

const (
	Milk     Category = "milk"
	Food     Category = "food"
	Sleep    Category = "sleep"
	Medicine Category = "medicine"
	Height   Category = "height"
	Weight   Category = "weight"
	Diary    Category = "diary"
	Unknown  Category = "unknown"
)

// Categories lists every recordable category in display order.
var Categories = []Category{Milk, Food, Sleep, Medicine, Height, Weight, Diary}

// Guidance is the reply sent when the head token matches no category.
const Guidance = `Invalid input. Please use one of the following formats:
M <ml>        milk, e.g. "M 160"
F <ml>        food, e.g. "F 120"
S <hours>     sleep, e.g. "S 1.5"
MED <cc>      medicine, e.g. "MED 2.5"
H <cm>        height, e.g. "H 62.5"
W <kg>        weight, e.g. "W 6.8"
D <text>      diary, free text up to 200 characters
When you manage more than one baby, put the baby number first, e.g. "M 1 160".`

// Command is a parsed text message.
type Command struct {
	Category Category
	Head     string
	Rest     string
}

// Parse splits text on its first whitespace run and classifies the head token.
func Parse(text string) Command {
	head, rest := Split(text)
	return Command{
		Category: Lookup(head),
		Head:     head,
		Rest:     rest,
	}
}

// Split returns the first whitespace-delimited token of text and the
// remainder with surrounding whitespace removed.
func Split(text string) (string, string) {
	text = strings.TrimSpace(text)
	idx := strings.IndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		return text, ""
	}
	return text[:idx], strings.TrimSpace(text[idx:])
}

// Lookup maps a head token to its category. Matching is exact after
// upper-casing; anything unmatched is Unknown.
func Lookup(head string) Category {
	switch strings.ToUpper(head) {
	case "M", "MILK", "奶", "喝奶", "牛奶", "ミルク":
		return Milk
	case "F", "FOOD", "副食品", "食物", "離乳食":
		return Food
	case "S", "SLEEP", "睡", "睡覺", "睡眠":
		return Sleep
	case "MED", "MEDICINE", "藥", "吃藥", "薬":
		return Medicine
	case "H", "HEIGHT", "身高", "身長":
		return Height
	case "W", "WEIGHT", "體重", "体重":
		return Weight
	case "D", "DIARY", "日記", "日记":
		return Diary
	default:
		return Unknown
	}
}

// Unit returns the unit a category's value is recorded in, or "" for free text.
func (c Category) Unit() string {
	switch c {
	case Milk, Food:
		return "ml"
	case Sleep:
		return "hours"
	case Medicine:
		return "cc"
	case Height:
		return "cm"
	case Weight:
		return "kg"
	default:
		return ""
	}
}

// Numeric reports whether the category carries a numeric value.
func (c Category) Numeric() bool {
	return c != Diary && c != Unknown
}
