package resolver

import (
	"fmt"
	"strings"
)

// BuildPrompt returns the instruction sent to the oracle for one name.
// Candidates are canonical names already in the mapping store; when empty
// the candidate section is omitted.
func BuildPrompt(fieldName, cleaned string, candidates []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "以下は「%s」に書かれた店舗名です。表記ゆれを直し、正式な店舗名を1つだけ返してください。\n\n", fieldName)

	b.WriteString("【ルール】\n")
	b.WriteString("- 元の名称に忠実に。法人格（株式会社など）や「様」「分」「御中」、部署名は含めない。\n")
	b.WriteString("- 「○○店」のような支店・店舗の語が元にあれば残す。\n")
	b.WriteString("- 長音符「ー」やダッシュ類「-」「–」「—」「―」「─」は消さない。\n")
	b.WriteString("- 英数字は半角、英字はすべて大文字。\n")
	b.WriteString("- 空白を入れない。括弧や引用符（「」『』()“”）を入れない。\n")
	b.WriteString("- 元がそうでない名前をカタカナやアルファベットに置き換えない。\n")
	b.WriteString("- 明らかな誤字（長音の欠落、余分な1文字など）は直す。\n\n")

	if len(candidates) > 0 {
		fmt.Fprintf(&b, "【候補】%s\n", strings.Join(candidates, " / "))
		b.WriteString("- 同じ店舗を指すと判断できる場合のみ候補の表記を使う。\n\n")
	}

	b.WriteString("【判断できない場合】推測せず、入力をそのまま返す。\n\n")
	fmt.Fprintf(&b, "【入力】\n%s\n\n", cleaned)
	b.WriteString("【出力】店舗名のみを1行で。前後の空白・改行・説明は不要。\n")

	return b.String()
}
