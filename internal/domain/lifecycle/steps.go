package lifecycle

// Workflow steps an order moves through.
const (
	StepOffered                = "offered"
	StepAccepted               = "accepted"
	StepWaiting                = "waiting"
	StepPickedUp               = "picked_up"
	StepDelivering             = "delivering"
	StepDroppedOff             = "dropped_off"
	StepImmediateSurveyPending = "immediate_survey_pending"
	StepImmediateSurveyDone    = "immediate_survey_done"
	StepDelayedSurveyPending   = "delayed_survey_pending"
	StepComplete               = "complete"
	StepDeclined               = "declined"
)

// Screens tell the client what to show next.
const (
	ScreenOffer           = "offer"
	ScreenPickup          = "pickup"
	ScreenWait            = "wait"
	ScreenDropoff         = "dropoff"
	ScreenImmediateSurvey = "immediate-survey"
	ScreenDelayedSurvey   = "delayed-survey"
	ScreenDone            = "done"
	ScreenRestart         = "restart"
)

// activeSteps are the steps an in-flight order can rest in.
var activeSteps = map[string]string{
	StepOffered:    ScreenOffer,
	StepAccepted:   ScreenPickup,
	StepPickedUp:   ScreenPickup,
	StepWaiting:    ScreenWait,
	StepDelivering: ScreenDropoff,
}

// IsActiveStep reports whether step belongs to an in-flight order.
func IsActiveStep(step string) bool {
	_, ok := activeSteps[step]
	return ok
}

// ScreenFor returns the screen for an in-flight step.
func ScreenFor(step string) string {
	if s, ok := activeSteps[step]; ok {
		return s
	}
	return ScreenOffer
}
