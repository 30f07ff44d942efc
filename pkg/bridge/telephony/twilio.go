package telephony

import (
	"context"
	"errors"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/vango-go/callbridge/pkg/bridge/fault"
)

// Twilio error code returned when updating a call that is no longer in
// progress.
const codeCallNotInProgress = 21220

// Twilio implements CallControl over the Twilio REST API.
type Twilio struct {
	api twilioCallAPI
}

type twilioCallAPI interface {
	CreateCall(params *twilioapi.CreateCallParams) (*twilioapi.ApiV2010Call, error)
	UpdateCall(sid string, params *twilioapi.UpdateCallParams) (*twilioapi.ApiV2010Call, error)
}

func NewTwilio(accountSid, authToken string) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})
	return &Twilio{api: client.Api}
}

func (t *Twilio) PlaceCall(ctx context.Context, req CallRequest) (PlacedCall, error) {
	params := &twilioapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetTwiml(req.TwiML)

	resp, err := t.api.CreateCall(params)
	if err != nil {
		return PlacedCall{}, fault.Wrap(fault.KindUnavailable, "telephony.place", err)
	}
	if resp.Sid == nil {
		return PlacedCall{}, fault.New(fault.KindUnavailable, "telephony.place", "call created without sid")
	}
	return PlacedCall{CallSid: *resp.Sid}, nil
}

func (t *Twilio) CompleteCall(ctx context.Context, callSid string) error {
	params := &twilioapi.UpdateCallParams{}
	params.SetStatus("completed")

	if _, err := t.api.UpdateCall(callSid, params); err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) && restErr.Code == codeCallNotInProgress {
			// Already terminated, success by contract.
			return nil
		}
		return fault.Wrap(fault.KindUnavailable, "telephony.complete", err)
	}
	return nil
}
