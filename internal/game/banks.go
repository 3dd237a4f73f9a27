package game

func yn(id, category, text string, spice int, hint string) Question {
	return Question{ID: id, Category: category, Text: text, Spice: spice, Hint: hint}
}

func ab(id, category, text, a, b string) Question {
	return Question{ID: id, Category: category, Text: text, Options: []string{a, b}}
}

var nhieBank = []Question{
	yn("nhie-001", "relationships", "cheated on someone", 3, "trust and past relationships"),
	yn("nhie-002", "adventure", "gone skydiving", 1, "appetite for risk"),
	yn("nhie-003", "travel", "travelled alone to another country", 1, "independence"),
	yn("nhie-004", "social", "pretended to be sick to skip a party", 1, "social energy"),
	yn("nhie-005", "relationships", "stayed friends with an ex", 2, "closure style"),
	yn("nhie-006", "romance", "fallen in love at first sight", 1, "romantic outlook"),
	yn("nhie-007", "adventure", "slept under the stars", 1, "love of the outdoors"),
	yn("nhie-008", "social", "sung karaoke in front of strangers", 1, "confidence"),
	yn("nhie-009", "romance", "written a love letter", 1, "expressiveness"),
	yn("nhie-010", "honesty", "read someone else's messages", 2, "privacy boundaries"),
	yn("nhie-011", "travel", "missed a flight", 1, "planning style"),
	yn("nhie-012", "relationships", "been in a long-distance relationship", 1, "commitment"),
	yn("nhie-013", "lifestyle", "quit a job without another one lined up", 2, "risk tolerance"),
	yn("nhie-014", "romance", "planned a surprise date", 1, "thoughtfulness"),
	yn("nhie-015", "social", "ghosted someone", 2, "communication habits"),
	yn("nhie-016", "adventure", "gone on a spontaneous road trip", 1, "spontaneity"),
	yn("nhie-017", "honesty", "lied about my age", 1, "self-image"),
	yn("nhie-018", "lifestyle", "cooked a full dinner for more than six people", 1, "hosting"),
	yn("nhie-019", "romance", "kissed someone on a first date", 2, "pace"),
	yn("nhie-020", "travel", "lived in another country", 1, "openness"),
	yn("nhie-021", "social", "crashed a wedding", 2, "boldness"),
	yn("nhie-022", "relationships", "said I love you first", 2, "vulnerability"),
	yn("nhie-023", "lifestyle", "run a marathon", 1, "discipline"),
	yn("nhie-024", "honesty", "regifted a present", 1, "practicality"),
	yn("nhie-025", "adventure", "swum in the ocean at night", 1, "thrill seeking"),
	yn("nhie-026", "romance", "had a crush on a friend's partner", 3, "loyalty"),
	yn("nhie-027", "social", "been kicked out of a bar", 2, "nightlife"),
	yn("nhie-028", "lifestyle", "adopted a pet", 1, "caregiving"),
	yn("nhie-029", "relationships", "met a partner's parents in the first month", 1, "family values"),
	yn("nhie-030", "travel", "booked a trip the day before leaving", 1, "spontaneity"),
	yn("nhie-031", "honesty", "pretended to like a gift", 1, "tact"),
	yn("nhie-032", "romance", "been on a blind date", 1, "openness to new people"),
	yn("nhie-033", "adventure", "gone bungee jumping", 1, "appetite for risk"),
	yn("nhie-034", "social", "forgotten a close friend's birthday", 1, "attentiveness"),
	yn("nhie-035", "lifestyle", "stayed up all night to finish a project", 1, "work ethic"),
	yn("nhie-036", "relationships", "gone back to an ex", 2, "second chances"),
}

var wyrBank = []Question{
	ab("wyr-001", "lifestyle", "Would you rather", "live in a big city", "live in the countryside"),
	ab("wyr-002", "travel", "Would you rather", "explore a new country every year", "have a favourite place you return to"),
	ab("wyr-003", "romance", "Would you rather", "get a handwritten letter", "get a surprise weekend away"),
	ab("wyr-004", "social", "Would you rather", "host a dinner party", "be a guest at one"),
	ab("wyr-005", "lifestyle", "Would you rather", "wake up at 5am", "stay up until 2am"),
	ab("wyr-006", "adventure", "Would you rather", "climb a mountain", "dive a coral reef"),
	ab("wyr-007", "romance", "Would you rather", "have a quiet night in", "go out dancing"),
	ab("wyr-008", "values", "Would you rather", "be rich and busy", "be comfortable with free time"),
	ab("wyr-009", "social", "Would you rather", "have a few close friends", "have a big circle"),
	ab("wyr-010", "lifestyle", "Would you rather", "cook every meal", "eat out every meal"),
	ab("wyr-011", "travel", "Would you rather", "take a road trip", "take a long train journey"),
	ab("wyr-012", "values", "Would you rather", "always say what you think", "always keep the peace"),
	ab("wyr-013", "romance", "Would you rather", "plan every date", "be surprised every date"),
	ab("wyr-014", "adventure", "Would you rather", "go to space", "go to the deep sea"),
	ab("wyr-015", "values", "Would you rather", "know the future", "change the past"),
	ab("wyr-016", "lifestyle", "Would you rather", "have a dog", "have a cat"),
	ab("wyr-017", "social", "Would you rather", "give a toast at a wedding", "dance first at a wedding"),
	ab("wyr-018", "travel", "Would you rather", "stay in a treehouse", "stay in an overwater bungalow"),
}

var thisOrThatBank = []Question{
	ab("tot-001", "food", "This or that", "coffee", "tea"),
	ab("tot-002", "lifestyle", "This or that", "beach", "mountains"),
	ab("tot-003", "food", "This or that", "pizza", "sushi"),
	ab("tot-004", "lifestyle", "This or that", "morning", "night"),
	ab("tot-005", "entertainment", "This or that", "movies", "series"),
	ab("tot-006", "entertainment", "This or that", "books", "podcasts"),
	ab("tot-007", "food", "This or that", "sweet", "savory"),
	ab("tot-008", "lifestyle", "This or that", "summer", "winter"),
	ab("tot-009", "social", "This or that", "text", "call"),
	ab("tot-010", "entertainment", "This or that", "concert", "theatre"),
	ab("tot-011", "lifestyle", "This or that", "gym", "yoga"),
	ab("tot-012", "social", "This or that", "party", "dinner for two"),
	ab("tot-013", "food", "This or that", "cook at home", "takeaway"),
	ab("tot-014", "travel", "This or that", "plane", "car"),
	ab("tot-015", "entertainment", "This or that", "board games", "video games"),
	ab("tot-016", "lifestyle", "This or that", "city break", "camping"),
	ab("tot-017", "social", "This or that", "brunch", "late dinner"),
	ab("tot-018", "travel", "This or that", "hotel", "cabin"),
}

var scenarioBank = []Question{
	yn("scn-001", "conflict", "Your partner forgets your birthday. What do you do?", 1, "conflict style"),
	yn("scn-002", "money", "You both win 10,000 in a raffle. How do you spend it?", 1, "money values"),
	yn("scn-003", "family", "Your partner's parents invite you for a week-long holiday. How do you respond?", 1, "family boundaries"),
	yn("scn-004", "social", "A friend of yours flirts with your partner at a party. What do you do?", 2, "jealousy"),
	yn("scn-005", "career", "You are offered a dream job in another city. Talk it through.", 1, "priorities"),
	yn("scn-006", "conflict", "You disagree about where to spend the holidays. How do you decide?", 1, "compromise"),
	yn("scn-007", "lifestyle", "Your partner wants to adopt a pet next week. How do you react?", 1, "spontaneity"),
	yn("scn-008", "romance", "Plan your ideal anniversary in under a minute.", 1, "romantic style"),
	yn("scn-009", "trust", "You find out your partner kept a small secret. What happens next?", 2, "trust"),
	yn("scn-010", "money", "Your partner lends a large sum to a friend without asking. How do you feel?", 2, "shared finances"),
	yn("scn-011", "social", "Your partner wants a night out with friends every weekend. How do you handle it?", 1, "independence"),
	yn("scn-012", "stress", "You both have a terrible week. How do you support each other?", 1, "care style"),
	yn("scn-013", "future", "Where do you see the two of you in five years?", 1, "long-term goals"),
	yn("scn-014", "conflict", "You said something hurtful in an argument. How do you make it right?", 1, "repair"),
	yn("scn-015", "lifestyle", "It is a rainy Sunday with no plans. Describe the perfect day together.", 1, "shared time"),
	yn("scn-016", "travel", "Your passport gets stolen on holiday. Who does what?", 1, "teamwork"),
}
