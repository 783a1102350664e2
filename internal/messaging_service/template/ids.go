package template

// Button and list-row ids. These come back verbatim in webhooks when users
// tap them, so they are part of the external contract and must never change.
const (
	BtnWater250      = "water_250ml"
	BtnWater500      = "water_500ml"
	BtnWaterNotYet   = "water_not_yet"
	BtnWeighNow      = "weigh_now"
	BtnWeighLater    = "weigh_later"
	BtnFeelingGreat  = "feeling_great"
	BtnFeelingOK     = "feeling_ok"
	BtnFeelingBad    = "feeling_bad"
	BtnSofiaConfirm  = "sofia_confirm"
	BtnSofiaEdit     = "sofia_edit"
	BtnMenu          = "menu"
	BtnHelp          = "help"

	RowProgress = "progress"
	RowHistory  = "history"
)

// Template keys accepted by Render.
const (
	KeyWaterReminder        = "water_reminder"
	KeyWaterConfirmation    = "water_confirmation"
	KeyWeighingReminder     = "weighing_reminder"
	KeyWeighingPromptWeight = "weighing_prompt_weight"
	KeyWeighingPromptWaist  = "weighing_prompt_waist"
	KeyWeighingComplete     = "weighing_complete"
	KeyDailyCheckin         = "daily_checkin"
	KeyCheckinResponse      = "checkin_response"
	KeyGoodMorning          = "good_morning"
	KeyDailySummary         = "daily_summary"
	KeyWelcome              = "welcome"
	KeyMainMenu             = "main_menu"
	KeyHelpMenu             = "help_menu"
	KeyFoodAnalysisComplete = "food_analysis_complete"
	KeyFoodConfirmed        = "food_confirmed"
	KeyUserNotFound         = "user_not_found"
)
