package i18n

var ptBRMessages = map[Code]string{
	CodeCommitMismatch:         "A semente revelada não corresponde ao compromisso.",
	CodeRollVerification:       "Falha na verificação da rolagem de {{.SubjectID}}.",
	CodeMalformedCommit:        "O compromisso deve ser um resumo hexadecimal minúsculo de 64 caracteres.",
	CodeSeasonNotActive:        "A temporada não está ativa.",
	CodeSeasonNotPlanned:       "A temporada já começou.",
	CodeSeasonTerminal:         "A temporada terminou.",
	CodeSeasonPaused:           "A temporada está pausada.",
	CodeChallengeNotOpen:       "A prova não está aceitando compromissos.",
	CodeChallengeNotLocked:     "As sementes só podem ser reveladas depois que a prova for travada.",
	CodeChallengeNotReady:      "A prova ainda não pode ser pontuada.",
	CodeChallengeCommitted:     "Você já se comprometeu com esta prova.",
	CodeChallengeAlreadyScored: "A prova já foi pontuada.",
	CodeVoteClosed:             "A votação está encerrada.",
	CodeSelectionClosed:        "A escolha de finalista está encerrada.",
	CodePlayerNotActive:        "O jogador {{.PlayerID}} não está mais no jogo.",
	CodeVoterIneligible:        "Você não pode votar nesta rodada.",
	CodeTargetIneligible:       "Você não pode votar em {{.TargetID}} nesta rodada.",
	CodeNotEntrant:             "Você não participa desta prova.",
	CodeIdolAlreadyPlayed:      "Um ídolo já foi usado para {{.PlayerID}}.",
	CodeCompanionIneligible:    "{{.PlayerID}} não pode ser escolhido.",
	CodeInvalidArgument:        "A requisição é inválida.",
	CodeRosterInvalid:          "O elenco é inválido: {{.Reason}}.",
	CodeNotFound:               "Não encontrado.",
	CodeUnauthenticated:        "É necessário autenticar.",
	CodePermissionDenied:       "Você não tem permissão para isso.",
}
