package html

import (
	"fmt"
	gohtml "html"
)

func RenderLayout(title, body string) string {
	return fmt.Sprintf(`<!doctype html><html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>%s</title><link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/daisyui@4.12.14/dist/full.min.css"><script src="https://cdn.tailwindcss.com"></script></head><body class="bg-base-200">%s</body></html>`, gohtml.EscapeString(title), body)
}
