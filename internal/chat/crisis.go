package chat

import "strings"

// crisisPhrases は自傷・自殺に関する既定フレーズ。部分一致・大文字小文字無視で照合する。
var crisisPhrases = []string{
	"suicide",
	"kill myself",
	"end it all",
	"want to die",
	"self harm",
	"hurt myself",
	"can't go on",
}

// Resource はユーザーに提示する危機相談窓口。
type Resource struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// CrisisResources は危機検出時に返す相談窓口の一覧。
var CrisisResources = []Resource{
	{Name: "988 Suicide & Crisis Lifeline", Contact: "Call or text 988"},
	{Name: "Crisis Text Line", Contact: "Text HOME to 741741"},
}

var apostropheReplacer = strings.NewReplacer("’", "'", "‘", "'")

// DetectCrisis はメッセージに危機フレーズが含まれるかどうかを返す。
func DetectCrisis(message string) bool {
	normalized := strings.ToLower(apostropheReplacer.Replace(message))
	for _, phrase := range crisisPhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}
