package captcha

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// bindingName is the page function the document calls exactly once with the token.
const bindingName = "koolaunchSubmitToken"

var documentTemplate = template.Must(template.New("challenge").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Verification</title>
<script src="{{.ScriptURL}}?render={{.SiteKey}}"></script>
</head>
<body>
<script>
(function () {
  var sent = false;
  function submit(token) {
    if (sent) { return; }
    sent = true;
    window.{{.Binding}}(token);
  }
  grecaptcha.ready(function () {
    grecaptcha.execute({{.SiteKey}}, {action: {{.Action}}}).then(submit, function () { submit(""); });
  });
})();
</script>
</body>
</html>
`))

type documentData struct {
	ScriptURL string
	SiteKey   string
	Action    string
	Binding   template.JS
}

func renderDocument(opts Options) ([]byte, error) {
	var buf bytes.Buffer
	err := documentTemplate.Execute(&buf, documentData{
		ScriptURL: opts.ScriptURL,
		SiteKey:   opts.SiteKey,
		Action:    opts.Action,
		Binding:   template.JS(bindingName),
	})
	if err != nil {
		return nil, fmt.Errorf("error rendering verification document: %w", err)
	}

	return buf.Bytes(), nil
}

// writeDocument materializes the verification document in dir and returns its path.
func writeDocument(dir string, opts Options) (string, error) {
	content, err := renderDocument(opts)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "challenge-"+uuid.NewString()+".html")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", fmt.Errorf("error writing verification document: %w", err)
	}

	return path, nil
}
