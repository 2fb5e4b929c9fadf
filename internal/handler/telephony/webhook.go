package telephony

import (
	"encoding/xml"
	"log"
	"net/http"

	"github.com/hotslice/voicedesk/internal/model/order"
)

// connectResponse is the TwiML directive that bridges the call's audio onto
// our media-stream websocket.
type connectResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Connect connectDetail `xml:"Connect"`
}

type connectDetail struct {
	Stream streamDetail `xml:"Stream"`
}

type streamDetail struct {
	URL        string        `xml:"url,attr"`
	Parameters []streamParam `xml:"Parameter"`
}

type streamParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// HandleIncomingCall answers the telephony webhook for a new call with a
// connect directive pointing at the media websocket. The caller's number
// rides along as a stream parameter so the websocket side can attach it to
// the session.
func (h *Handler) HandleIncomingCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		log.Printf("[telephony] webhook form parse failed: %v", err)
	}

	caller := order.NormalizePhone(r.FormValue("From"))
	if caller == "" {
		caller = "unknown"
	}

	directive := connectResponse{
		Connect: connectDetail{
			Stream: streamDetail{
				URL: "wss://" + h.publicHost + "/voice/media",
				Parameters: []streamParam{
					{Name: "caller", Value: caller},
				},
			},
		},
	}

	body, err := xml.Marshal(directive)
	if err != nil {
		log.Printf("[telephony] twiml encode failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(xml.Header))
	w.Write(body)

	log.Printf("[telephony] answered incoming call from=%s", caller)
}
