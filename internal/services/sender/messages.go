package sender

import (
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message/catalog"
)

// Ключи сообщений. Английский текст ключа служит запасным переводом.
const (
	msgGreeting        = "Hello, %s!"
	msgGreetingPlain   = "Hello!"
	msgTrialEndsIn     = "Your trial ends in %d days"
	msgTrialEndsOn     = "Your %s trial ends on %s."
	msgTrialToday      = "Your trial ends today"
	msgTrialTodayBody  = "Your %s trial ends today. Choose a plan to keep full access."
	msgTrialExpired    = "Your trial has ended"
	msgTrialLimited    = "Your account is now limited. Choose a plan to keep full access."
	msgChoosePlan      = "Choose a plan"
	msgPaymentOK       = "Payment confirmed"
	msgPaymentOKBody   = "We received your payment of %s for the %s plan. Access is active until %s."
	msgPaymentFail     = "Payment not confirmed"
	msgPaymentFailBody = "We could not confirm your payment of %s for the %s plan."
	msgReason          = "Reason: %s"
	msgGoToBilling     = "Go to billing"
)

var translations = map[language.Tag]map[string]string{
	language.Portuguese: {
		msgGreeting:        "Olá, %s!",
		msgGreetingPlain:   "Olá!",
		msgTrialEndsOn:     "O seu período de teste do plano %s termina em %s.",
		msgTrialToday:      "O seu período de teste termina hoje",
		msgTrialTodayBody:  "O seu período de teste do plano %s termina hoje. Escolha um plano para manter o acesso completo.",
		msgTrialExpired:    "O seu período de teste terminou",
		msgTrialLimited:    "A sua conta está agora limitada. Escolha um plano para manter o acesso completo.",
		msgChoosePlan:      "Escolher um plano",
		msgPaymentOK:       "Pagamento confirmado",
		msgPaymentOKBody:   "Recebemos o seu pagamento de %s pelo plano %s. O acesso está ativo até %s.",
		msgPaymentFail:     "Pagamento não confirmado",
		msgPaymentFailBody: "Não foi possível confirmar o seu pagamento de %s pelo plano %s.",
		msgReason:          "Motivo: %s",
		msgGoToBilling:     "Ir para a faturação",
	},
}

// newCatalog собирает каталог писем. Ошибка возможна только при опечатке в статических данных.
func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))

	must(b.Set(language.English, msgTrialEndsIn, plural.Selectf(1, "%d",
		plural.One, "Your trial ends in %[1]d day",
		plural.Other, "Your trial ends in %[1]d days",
	)))
	must(b.Set(language.Portuguese, msgTrialEndsIn, plural.Selectf(1, "%d",
		plural.One, "O seu período de teste termina em %[1]d dia",
		plural.Other, "O seu período de teste termina em %[1]d dias",
	)))

	for tag, msgs := range translations {
		for key, msg := range msgs {
			must(b.SetString(tag, key, msg))
		}
	}
	return b
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
