package session

import (
	"fmt"
	"net/url"
	"strings"
)

// WhatsApp Web markup changes without notice, so each element is located
// through an ordered list of selectors. The first match wins.
var (
	chatListSelectors = []string{
		"#pane-side",
		"[data-testid='chat-list']",
		"div[aria-label='Chat list']",
	}
	qrSelectors = []string{
		"canvas[aria-label*='QR']",
		"div[data-ref] canvas",
		"[data-testid='qrcode']",
	}
	composeSelectors = []string{
		"[data-testid='conversation-compose-box-input']",
		"footer div[contenteditable='true'][role='textbox']",
		"div[contenteditable='true'][data-tab='10']",
		"footer div[contenteditable='true']",
	}
	sendButtonSelectors = []string{
		"[data-testid='send']",
		"button[aria-label='Send']",
		"button[aria-label*='Send']",
		"span[data-icon='send']",
		"button[data-tab='11']",
	}
	invalidPopupSelectors = []string{
		"[data-testid='popup-contents']",
		"div[data-animate-modal-popup='true']",
	}
)

// Page states reported by the state scripts
const (
	pageLoading  = "loading"
	pageLoggedIn = "logged_in"
	pageQR       = "qr_needed"
	pageReady    = "ready"
	pageInvalid  = "invalid"

	// the chat is open but the text has not been prefilled yet
	pageComposeEmpty = "compose_empty"
)

// NormalizeNumber strips formatting from a phone number and checks that
// what is left is an international number made of digits only.
func NormalizeNumber(number string) (string, error) {
	cleaned := strings.NewReplacer("+", "", " ", "", "-", "", "(", "", ")", "", ".", "").Replace(strings.TrimSpace(number))
	if cleaned == "" {
		return "", fmt.Errorf("empty number")
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("number %q contains non-digit characters", number)
		}
	}
	if len(cleaned) < 7 || len(cleaned) > 15 {
		return "", fmt.Errorf("number %q must have 7 to 15 digits", number)
	}
	return cleaned, nil
}

// ChatURL builds the deep link that opens a chat with the message prefilled
func ChatURL(baseURL, number, message string) string {
	q := url.Values{}
	q.Set("phone", number)
	q.Set("text", message)
	return fmt.Sprintf("%s/send?%s", strings.TrimRight(baseURL, "/"), q.Encode())
}

func jsSelectorList(selectors []string) string {
	quoted := make([]string, len(selectors))
	for i, s := range selectors {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

// jsFirst evaluates to the first element matching any of the selectors
func jsFirst(selectors []string) string {
	return fmt.Sprintf(`(%s.map(s => document.querySelector(s)).find(el => el) || null)`, jsSelectorList(selectors))
}

func loginStateScript() string {
	return fmt.Sprintf(`(() => {
	if (%s) return %q;
	if (%s) return %q;
	return %q;
})()`, jsFirst(chatListSelectors), pageLoggedIn, jsFirst(qrSelectors), pageQR, pageLoading)
}

func composeStateScript() string {
	return fmt.Sprintf(`(() => {
	const popup = %s;
	if (popup && /invalid|not on whatsapp|isn.t on whatsapp/i.test(popup.innerText || '')) return %q;
	const box = %s;
	if (!box) return %q;
	return (box.innerText || '').trim() === '' ? %q : %q;
})()`, jsFirst(invalidPopupSelectors), pageInvalid, jsFirst(composeSelectors), pageLoading, pageComposeEmpty, pageReady)
}

// clickSendScript clicks the first send control it finds and reports
// whether it did
func clickSendScript() string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return false;
	const target = el.closest('button') || el;
	target.click();
	return true;
})()`, jsFirst(sendButtonSelectors))
}

// composeEmptyScript is true once the compose box has been cleared,
// which happens when WhatsApp accepts the message
func composeEmptyScript() string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	return !!el && (el.innerText || '').trim() === '';
})()`, jsFirst(composeSelectors))
}
