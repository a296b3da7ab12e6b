/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package payrecon

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/payrecon/model"
)

const (
	rankingLimit      = 20
	inactiveLimit     = 15
	zeroPurchaseLimit = 20
	cleanupListLimit  = 10

	// returningAfterDays selects the "welcome back" purchase message.
	returningAfterDays = 2

	localeTimeLayout = "02/01/2006, 15:04:05"
)

var mbPerGB = decimal.NewFromInt(1024)

// FormatMegas renders a quantity in MB, switching to GB with one decimal
// from 1024 MB upward.
func FormatMegas(mb int64) string {
	if mb >= 1024 {
		return decimal.NewFromInt(mb).Div(mbPerGB).StringFixed(1) + " GB"
	}
	return groupThousands(mb) + " MB"
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// Ordinal renders the feminine Portuguese ordinal of n ("1ª").
func Ordinal(n int) string {
	return fmt.Sprintf("%dª", n)
}

// PurchaseMessage composes the thank-you reply for a recorded purchase.
func PurchaseMessage(out model.PurchaseOutcome) string {
	number := strings.TrimPrefix(out.Phone, "+")
	added := FormatMegas(out.Amount)
	total := FormatMegas(out.CumulativeTotal)

	var b strings.Builder
	if out.HadPreviousPurchase && out.DaysSincePrevious >= returningAfterDays {
		fmt.Fprintf(&b, "🎉 Obrigado, @%s, Há %d dias que você não comprava, bom tê-lo de volta! Foram adicionados %s, totalizando %s comprados.",
			number, out.DaysSincePrevious, added, total)
	} else {
		fmt.Fprintf(&b, "🎉 Obrigado, @%s, Você está fazendo a sua %s compra do dia! Foram adicionados %s, totalizando %s comprados.",
			number, Ordinal(out.PurchasesToday), added, total)
	}

	switch out.Rank {
	case 1:
		b.WriteString(" Você está em 1º lugar no ranking. Continue comprando para se manter no topo e garantir seus bônus de líder!")
		return b.String()
	case 2:
		b.WriteString(" Você está em 2º lugar no ranking. Está quase lá! Continue comprando para alcançar o topo.")
	default:
		fmt.Fprintf(&b, " Você está em %dº lugar no ranking. Continue comprando para subir e desbloquear bônus especiais.", out.Rank)
	}
	if out.LeaderPhone != "" {
		fmt.Fprintf(&b, " O líder já acumulou %s! 🏆", FormatMegas(out.LeaderTotal))
	}
	return b.String()
}

// displayName falls back to the local number when the buyer has no name.
func displayName(name, buyerPhone, countryCode string) string {
	if name != "" {
		return name
	}
	return strings.TrimPrefix(buyerPhone, "+"+countryCode)
}

func rankEmoji(position int) string {
	switch position {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return "📍"
	}
}

// RankingMessage renders the group leaderboard.
func RankingMessage(ranked []model.RankedBuyer, purchases, amount int64, countryCode string) string {
	if len(ranked) == 0 {
		return "📊 *RANKING*\n\nAinda não há compradores registados neste grupo."
	}

	var b strings.Builder
	b.WriteString("🏆 *RANKING DE COMPRADORES* 🏆\n\n")
	for _, r := range ranked {
		fmt.Fprintf(&b, "%s *%dº* - %s\n", rankEmoji(r.Position), r.Position, displayName(r.DisplayName, r.Phone, countryCode))
		fmt.Fprintf(&b, "   📊 %s\n\n", FormatMegas(r.Total))
	}
	fmt.Fprintf(&b, "📈 *Total do grupo:* %s\n", FormatMegas(amount))
	fmt.Fprintf(&b, "🛒 *Total de compras:* %d", purchases)
	return b.String()
}

// InactiveMessage renders the buyers idle for longer than the inactivity period.
func InactiveMessage(inactive []model.InactiveBuyer, countryCode string) string {
	if len(inactive) == 0 {
		return "😴 *COMPRADORES INATIVOS*\n\nNão há compradores inativos (15+ dias sem comprar)."
	}

	var b strings.Builder
	b.WriteString("😴 *COMPRADORES INATIVOS* 😴\n")
	b.WriteString("*(Mais de 15 dias sem comprar)*\n\n")
	for i, buyer := range inactive {
		if i == inactiveLimit {
			break
		}
		fmt.Fprintf(&b, "📱 %s\n", displayName(buyer.DisplayName, buyer.Phone, countryCode))
		fmt.Fprintf(&b, "   ⏰ %d dias sem comprar\n", buyer.DaysInactive)
		fmt.Fprintf(&b, "   📊 Total: %s\n\n", FormatMegas(buyer.Total))
	}
	if len(inactive) > inactiveLimit {
		fmt.Fprintf(&b, "... e mais %d compradores inativos.", len(inactive)-inactiveLimit)
	}
	return b.String()
}

// ZeroPurchaseMessage renders the members that never bought, out of memberCount.
func ZeroPurchaseMessage(members []model.MemberWithoutPurchase, memberCount int) string {
	if len(members) == 0 {
		return "📝 *SEM REGISTO DE COMPRAS*\n\nTodos os membros do grupo já fizeram pelo menos uma compra! 🎉"
	}

	var b strings.Builder
	b.WriteString("📝 *MEMBROS SEM COMPRAS* 📝\n")
	b.WriteString("*(Membros do grupo que nunca compraram)*\n\n")
	for i, m := range members {
		if i == zeroPurchaseLimit {
			break
		}
		status := "❌ Sem registo"
		if m.HasRecord {
			status = "📋 Registado"
		}
		fmt.Fprintf(&b, "📱 %s\n", m.DisplayName)
		fmt.Fprintf(&b, "   %s • 0 MB comprados\n\n", status)
	}
	if len(members) > zeroPurchaseLimit {
		fmt.Fprintf(&b, "... e mais %d membros sem compras.", len(members)-zeroPurchaseLimit)
	}
	fmt.Fprintf(&b, "\n💡 *Total sem compras:* %d/%d membros", len(members), memberCount)
	return b.String()
}

const (
	msgGroupOnly          = "🚫 Este comando só funciona em grupos."
	msgZeroPurchaseGroups = "📝 Este comando só funciona em grupos."
	msgMembersError       = "❌ Erro ao obter lista de membros do grupo. Certifique-se de que o bot é administrador."
	msgBotNotAdmin        = "🚫 *BOT SEM PERMISSÃO*\n\nO bot precisa ser administrador para remover membros."
	msgOnlyRequester      = "🚫 Apenas quem solicitou a limpeza pode confirmar."
)

// SpamNotice announces a detected flood before the group is closed.
func SpamNotice(ev SpamEvent, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	name := ev.SenderName
	if name == "" {
		name = ev.SenderNumber
	}
	return "🚨 *SPAM DETECTADO* 🚨\n\n" +
		fmt.Sprintf("👤 **Usuário:** %s\n", name) +
		fmt.Sprintf("📱 **Número:** +%s\n", ev.SenderNumber) +
		fmt.Sprintf("📊 **Mensagens repetidas:** %d\n", ev.Count) +
		fmt.Sprintf("⏰ **Horário:** %s\n\n", ev.At.In(loc).Format(localeTimeLayout)) +
		"🔒 **GRUPO SERÁ FECHADO POR SEGURANÇA**\n\n" +
		"*Motivo:* Suspeita de spam/flood de mensagens"
}

// GroupClosedNotice follows a spam lockdown.
func GroupClosedNotice() string {
	return "🔐 *GRUPO FECHADO AUTOMATICAMENTE* 🔐\n\n" +
		"O grupo foi temporariamente fechado devido à detecção de spam.\n\n" +
		"👨‍💼 **Administradores:** O grupo está agora restrito apenas para admins.\n" +
		"Para reabrir, use as configurações do grupo.\n\n" +
		"⚠️ **Recomendação:** Revisar e remover o usuário suspeito antes de reabrir."
}

// ForeignRemovalNotice is posted after a foreign number was removed.
func ForeignRemovalNotice(name, number, reason, countryCode string) string {
	return "🚫 *NÚMERO ESTRANGEIRO REMOVIDO* 🚫\n\n" +
		fmt.Sprintf("👤 **Usuário:** %s\n", name) +
		fmt.Sprintf("📱 **Número:** +%s\n", number) +
		"🌍 **Motivo:** Número não moçambicano\n" +
		fmt.Sprintf("⚡ **Ação:** %s\n\n", reason) +
		fmt.Sprintf("🇲🇿 *Este grupo aceita apenas números de Moçambique (+%s)*", countryCode)
}

// cleanupTexts holds the wording of one cleanup workflow.
type cleanupTexts struct {
	accessDenied string
	unnecessary  string
	confirmTitle string
	confirmVerb  string
	confirmHint  string
	criteria     string
	noPending    string
	starting     string
	doneTitle    string
	doneUnit     string
	doneFooter   string
	prepareError string
	runError     string
	lineFormat   func(m cleanupCandidate) string
}

var (
	purchaseCleanupTexts = cleanupTexts{
		accessDenied: "🚫 *ACESSO NEGADO*\n\nApenas administradores podem executar limpeza do grupo.",
		unnecessary:  "✅ *LIMPEZA DESNECESSÁRIA*\n\nTodos os membros (não-admin) já têm compras registadas!",
		confirmTitle: "🧹 *CONFIRMAÇÃO DE LIMPEZA* 🧹",
		confirmVerb:  "membro(s) sem compras",
		confirmHint:  ".confirmar",
		noPending:    "❌ Não há limpeza pendente para confirmar.",
		starting:     "🧹 *INICIANDO LIMPEZA...*\n\nRemoção de %d membro(s) em andamento...",
		doneTitle:    "✅ *LIMPEZA CONCLUÍDA* ✅",
		doneUnit:     "membro(s)",
		doneFooter:   "🎯 Grupo agora contém apenas membros com compras registadas!",
		prepareError: "❌ Erro ao preparar limpeza do grupo.",
		runError:     "❌ Erro durante a execução da limpeza.",
		lineFormat:   func(m cleanupCandidate) string { return "• " + m.Name },
	}
	numberCleanupTexts = cleanupTexts{
		accessDenied: "🚫 *ACESSO NEGADO*\n\nApenas administradores podem executar limpeza de números.",
		unnecessary:  "✅ *LIMPEZA DESNECESSÁRIA*\n\nTodos os membros (não-admin) são números moçambicanos válidos! 🇲🇿",
		confirmTitle: "🇲🇿 *CONFIRMAÇÃO DE LIMPEZA NÚMEROS* 🇲🇿",
		confirmVerb:  "número(s) estrangeiro(s)",
		confirmHint:  ".confirmar.numeros",
		criteria:     "🇲🇿 *CRITÉRIO:* Apenas números +%s são aceites\n",
		noPending:    "❌ Não há limpeza de números pendente para confirmar.",
		starting:     "🇲🇿 *INICIANDO LIMPEZA DE NÚMEROS...*\n\nRemoção de %d número(s) estrangeiro(s) em andamento...",
		doneTitle:    "✅ *LIMPEZA DE NÚMEROS CONCLUÍDA* ✅",
		doneUnit:     "número(s) estrangeiro(s)",
		doneFooter:   "🇲🇿 Grupo agora contém apenas números moçambicanos válidos!",
		prepareError: "❌ Erro ao preparar limpeza de números.",
		runError:     "❌ Erro durante a execução da limpeza de números.",
		lineFormat:   func(m cleanupCandidate) string { return fmt.Sprintf("• %s (+%s)", m.Name, m.Number) },
	}
)

func (t cleanupTexts) confirmation(candidates []cleanupCandidate, countryCode string) string {
	lines := make([]string, 0, cleanupListLimit)
	for i, m := range candidates {
		if i == cleanupListLimit {
			break
		}
		lines = append(lines, t.lineFormat(m))
	}

	var b strings.Builder
	b.WriteString(t.confirmTitle + "\n\n")
	fmt.Fprintf(&b, "⚠️ Será removido %d %s:\n\n", len(candidates), t.confirmVerb)
	b.WriteString(strings.Join(lines, "\n"))
	if len(candidates) > cleanupListLimit {
		fmt.Fprintf(&b, "\n... e mais %d", len(candidates)-cleanupListLimit)
	}
	b.WriteString("\n\n📋 *PROTEGIDOS:* Administradores não serão removidos\n")
	if t.criteria != "" {
		fmt.Fprintf(&b, t.criteria, countryCode)
	}
	fmt.Fprintf(&b, "\nPara confirmar, responda com: *%s*\n", t.confirmHint)
	b.WriteString("Para cancelar, ignore esta mensagem.")
	return b.String()
}

func (t cleanupTexts) report(removed, failed, total int) string {
	return t.doneTitle + "\n\n" +
		fmt.Sprintf("🗑️ **Removidos:** %d %s\n", removed, t.doneUnit) +
		fmt.Sprintf("❌ **Erros:** %d\n", failed) +
		fmt.Sprintf("📊 **Total processado:** %d\n\n", total) +
		t.doneFooter
}
