package title

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  string
	}{
		{
			name:  "empty input",
			texts: nil,
			want:  "",
		},
		{
			name: "most frequent proper noun wins",
			texts: []string{
				"Россия и Казахстан подписали соглашение",
				"Россия увеличила экспорт нефти",
				"Экспорт из Казахстан вырос",
			},
			want: "Россия • Казахстан • Экспорт",
		},
		{
			name: "quoted phrase extracted",
			texts: []string{
				"Компания «Яндекс Маркет» объявила о запуске",
			},
			want: "Яндекс Маркет • Компания • Яндекс",
		},
		{
			name: "acronyms counted",
			texts: []string{
				"НАТО провело учения",
				"Учения НАТО завершились",
			},
			want: "НАТО • Учения",
		},
		{
			name: "urls and mentions stripped",
			texts: []string{
				"подробности https://example.com/news от @channel",
			},
			want: "подробности",
		},
		{
			name: "latin capitalized words",
			texts: []string{
				"Apple представила новый продукт",
				"Apple снизила цены",
			},
			want: "Apple",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.texts))
		})
	}
}

func TestSummarizeDeterministic(t *testing.T) {
	texts := []string{"Москва объявила о планах", "Берлин ответил Москва"}

	first := Summarize(texts)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Summarize(texts))
	}
}

func TestSummarizeTruncates(t *testing.T) {
	long := strings.Repeat("Оченьдлинноесобственноеимяпервое ", 1) +
		strings.Repeat("Оченьдлинноесобственноеимявторое ", 1) +
		strings.Repeat("Оченьдлинноесобственноеимятретье ", 1)

	got := Summarize([]string{long, long})
	assert.LessOrEqual(t, len([]rune(got)), 100)
}

func TestSummarizeFallback(t *testing.T) {
	// No capitalized words, quotes or acronyms. Falls back to leading
	// significant words of the first text.
	got := Summarize([]string{"сегодня случилось нечто важное и интересное"})
	assert.Equal(t, "сегодня случилось нечто", got)
}
