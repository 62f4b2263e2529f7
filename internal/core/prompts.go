package core

import (
	"fmt"
	"strings"

	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/pkg"
)

// prompts.go holds the English prompts sent to the model.  Keeping them in
// one place makes them easy to tweak without touching the request flow.

const (
	// SystemPrompt frames every advisory conversation.  A farmer profile
	// block is appended by BuildSystemPrompt when one is known.
	SystemPrompt = "You are an AI farming assistant for Malayalam-speaking farmers in Kerala, India.\n" +
		"You provide practical, localized farming advice in simple Malayalam or English as preferred by the farmer.\n\n" +
		"Your expertise includes:\n" +
		"- Crop selection and planting schedules for Kerala's climate\n" +
		"- Organic and traditional farming methods\n" +
		"- Plant disease identification and treatment\n" +
		"- Soil health and fertilizer recommendations\n" +
		"- Irrigation and water management\n" +
		"- Market prices and government schemes\n" +
		"- Weather-based farming advice\n\n" +
		"Always provide practical, actionable advice suitable for small to medium farmers in Kerala.\n" +
		"Be encouraging and supportive in your responses."

	// TranslatorSystemPrompt is used for translation calls instead of the
	// farming preamble.
	TranslatorSystemPrompt = "You are a professional translator. Provide accurate translations without any additional text."

	// FallbackResponse replaces the model's answer whenever the provider
	// call fails.  It is persisted like a normal reply.
	FallbackResponse = "I'm sorry, I'm having trouble processing your request right now. " +
		"Please try again or contact an agriculture officer for immediate assistance."
)

// BuildSystemPrompt returns SystemPrompt, followed by the farmer's profile
// when one is given.
func BuildSystemPrompt(profile *pkg.FarmerProfile) string {
	if profile == nil {
		return SystemPrompt
	}
	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\n\nFarmer Profile:")
	fmt.Fprintf(&b, "\nName: %s", orDefault(profile.Name, "Unknown"))
	fmt.Fprintf(&b, "\nLocation: %s", orDefault(profile.Location, "Kerala"))
	fmt.Fprintf(&b, "\nCrops: %s", strings.Join(profile.Crops, ", "))
	farmSize := ""
	if profile.FarmSize != nil {
		farmSize = *profile.FarmSize
	}
	fmt.Fprintf(&b, "\nFarm Size: %s", orDefault(farmSize, "Not specified"))
	return b.String()
}

// BuildImageAugmentedMessage wraps a message sent together with a plant
// image in instructions to analyse the image.
func BuildImageAugmentedMessage(message string) string {
	return fmt.Sprintf("The farmer has shared an image of their plant/crop along with this message: \"%s\"\n\n"+
		"Please analyze the image and provide:\n"+
		"1. Plant/crop identification if possible\n"+
		"2. Any visible diseases or issues\n"+
		"3. Treatment recommendations\n"+
		"4. Prevention advice\n\n"+
		"Farmer's message: %s", message, message)
}

// BuildDiseasePrompt asks for a structured diagnosis of a plant image.
func BuildDiseasePrompt(description string) string {
	return fmt.Sprintf("Analyze this plant image for diseases or issues. The farmer says: \"%s\"\n\n"+
		"Please provide:\n"+
		"1. Plant identification\n"+
		"2. Disease/pest identification (if any)\n"+
		"3. Severity level (mild/moderate/severe)\n"+
		"4. Treatment recommendations (organic preferred)\n"+
		"5. Prevention advice\n\n"+
		"Format your response clearly for a farmer to understand.", description)
}

func BuildTranslationPrompt(text string, src, dst pkg.Language) string {
	return fmt.Sprintf("Translate the following text from %s to %s. "+
		"Provide only the translated text without any additional commentary or explanation.\n\n"+
		"Text to translate: %s\n\n"+
		"Translation:", src, dst, text)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
