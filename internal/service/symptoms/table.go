package symptoms

// rule is the source form of one mapping entry. Patterns are matched
// case-insensitively anywhere in the phrase. \b is only meaningful next to
// ASCII letters, so Indic-script alternatives are written without it.
//
// Order matters: the first matching entry wins. Entries whose phrases
// contain another entry's phrase (nausea "বমি বমি ভাব" vs vomiting "বমি",
// chills "feeling cold" vs cold) must come first.
type rule struct {
	label    string
	patterns []string
}

var defaultRules = []rule{
	{"Fever", []string{
		`\bfever(ish)?\b`, `\bpyrexia\b`,
		`\bjwa?ra?m?\b`, `\bjvara\b`, `\bbukh?aa?r\b`, `\btaap\b`,
		`ज्वर`, `बुखार`, `ताप`, // hi / mr
		`జ్వరం`, `\bjwaram\b`, // te
		`காய்ச்சல்`, `\bkaa?ichal\b`, // ta
		`ಜ್ವರ`,  // kn
		`জ্বর`, // bn
	}},
	{"Cough", []string{
		`\bcough(ing)?\b`,
		`\bkhaa?n?si\b`, `\bkhokla\b`,
		`खांसी`, `खाँसी`, `खासी`, `खोकला`,
		`దగ్గు`, `\bdaggu\b`,
		`இருமல்`, `\birumal\b`,
		`ಕೆಮ್ಮು`, `\bkemmu\b`,
		`কাশি`,
	}},
	{"Headache", []string{
		`\bhead ?aches?\b`, `\bhead pain\b`, `\bmigraine\b`,
		`\bsa?i?r ?dard\b`, `\bsir (me|mein|main) dard\b`,
		`सिरदर्द`, `सिर दर्द`, `सर दर्द`, `सिर में दर्द`, `डोकेदुखी`,
		`తలనొప్పి`, `\btala ?noppi\b`,
		`தலைவலி`, `தலை வலி`, `\bthalai ?vali\b`,
		`ತಲೆನೋವು`, `ತಲೆ ನೋವು`, `\btale ?novu\b`,
		`মাথাব্যথা`, `মাথা ব্যথা`,
	}},
	{"Sore Throat", []string{
		`\bsore throat\b`, `\bthroat (pain|irritation)\b`,
		`\bgal(e|a) (me|mein|main) dard\b`, `\bgala kharab\b`,
		`गले में दर्द`, `गला खराब`, `घसा दुखणे`,
		`గొంతు నొప్పి`, `\bgonthu noppi\b`,
		`தொண்டை வலி`,
		`ಗಂಟಲು ನೋವು`,
		`গলা ব্যথা`,
	}},
	{"Chest Pain", []string{
		`\bchest (pain|tightness)\b`,
		`\b(seene|chhati|chaati) (me|mein|main) dard\b`,
		`सीने में दर्द`, `छाती में दर्द`, `छातीत दुखणे`,
		`ఛాతీ నొప్పి`,
		`நெஞ்சு வலி`, `நெஞ்சுவலி`,
		`ಎದೆ ನೋವು`,
		`বুকে ব্যথা`,
	}},
	{"Abdominal Pain", []string{
		`\b(stomach|abdominal|abdomen|belly|tummy) ?(pain|ache)\b`,
		`\bpet (me|mein|main )?dard\b`, `\bpet dard\b`,
		`पेट दर्द`, `पेट में दर्द`, `पोटदुखी`,
		`కడుపు నొప్పి`, `\bkadupu noppi\b`,
		`வயிற்று வலி`, `வயிறு வலி`,
		`ಹೊಟ್ಟೆ ನೋವು`,
		`পেট ব্যথা`, `পেটে ব্যথা`,
	}},
	{"Back Pain", []string{
		`\b(lower )?back ?(pain|ache)\b`,
		`\bkamar (me|mein|main )?dard\b`,
		`कमर दर्द`, `पीठ दर्द`, `पाठदुखी`,
		`నడుము నొప్పి`,
		`முதுகு வலி`,
		`ಬೆನ್ನು ನೋವು`,
		`কোমর ব্যথা`, `পিঠে ব্যথা`,
	}},
	{"Joint Pain", []string{
		`\bjoint pains?\b`, `\barthralgia\b`,
		`\bjodo?n? (me|mein|main|ka) dard\b`,
		`जोड़ों में दर्द`, `जोड़ों का दर्द`, `सांधेदुखी`,
		`కీళ్ల నొప్పులు`,
		`மூட்டு வலி`,
		`ಕೀಲು ನೋವು`,
		`গাঁটে ব্যথা`,
	}},
	{"Body Ache", []string{
		`\bbody ?(aches?|pains?)\b`, `\bmyalgia\b`,
		`\bbadan dard\b`, `\bsharee?r (me|mein|main) dard\b`,
		`बदन दर्द`, `शरीर में दर्द`, `अंगदुखी`,
		`ఒళ్ళు నొప్పులు`,
		`உடல் வலி`, `உடம்பு வலி`,
		`ಮೈ ಕೈ ನೋವು`,
		`গা ব্যথা`,
	}},
	{"Toothache", []string{
		`\btooth ?aches?\b`, `\btooth pain\b`,
		`\bdaa?n?t (me|mein|main )?dard\b`,
		`दांत दर्द`, `दाँत में दर्द`, `दांत में दर्द`,
		`పంటి నొప్పి`,
		`பல் வலி`,
		`ಹಲ್ಲು ನೋವು`,
		`দাঁতে ব্যথা`,
	}},
	{"Ear Pain", []string{
		`\bear ?(pain|ache)\b`,
		`\bkaa?n (me|mein|main )?dard\b`,
		`कान दर्द`, `कान में दर्द`,
		`చెవి నొప్పి`,
		`காது வலி`,
		`ಕಿವಿ ನೋವು`,
		`কানে ব্যথা`,
	}},
	{"Nausea", []string{
		`\bnause(a|ous)\b`, `\bqueasy\b`,
		`\bji machal(na|ana|ta)\b`, `\bmatli\b`,
		`जी मिचलाना`, `जी मिचला`, `मतली`, `मळमळ`,
		`వికారం`,
		`குமட்டல்`,
		`ವಾಕರಿಕೆ`,
		`বমি বমি ভাব`,
	}},
	{"Vomiting", []string{
		`\bvomit(ing|s|ed)?\b`, `\bthrowing up\b`, `\bemesis\b`,
		`\bulti(yan|yaan)?\b`,
		`उल्टी`, `उलटी`,
		`వాంతులు`, `వాంతి`, `\bvanthi\b`,
		`வாந்தி`,
		`ವಾಂತಿ`,
		`বমি`,
	}},
	{"Diarrhea", []string{
		`\bdiarrh?o?ea\b`, `\bloose (motions?|stools?)\b`,
		`\bdast\b`, `\bjulab\b`,
		`दस्त`, `जुलाब`, `जुलाब होणे`,
		`విరేచనాలు`,
		`வயிற்றுப்போக்கு`,
		`ಭೇದಿ`,
		`পাতলা পায়খানা`,
	}},
	{"Constipation", []string{
		`\bconstipat(ion|ed)\b`,
		`\b(kabz|qabz|kabj)\b`,
		`कब्ज`, `बद्धकोष्ठता`,
		`మలబద్ధకం`,
		`மலச்சிக்கல்`,
		`ಮಲಬದ್ಧತೆ`,
		`কোষ্ঠকাঠিন্য`,
	}},
	{"Breathlessness", []string{
		`\bshortness of breath\b`, `\bbreathless(ness)?\b`, `\bdifficulty (in )?breathing\b`, `\bdyspn(o)?ea\b`,
		`\bsaa?ns (lene )?(me|mein|main) (taklee?f|dikkat)\b`, `\bsaa?ns phoo?lna\b`,
		`सांस लेने में तकलीफ`, `सांस में तकलीफ`, `साँस फूलना`, `सांस फूलना`, `दम लागणे`,
		`ఆయాసం`,
		`மூச்சுத் திணறல்`, `மூச்சு திணறல்`,
		`ಉಸಿರಾಟದ ತೊಂದರೆ`,
		`শ্বাসকষ্ট`,
	}},
	{"Chills", []string{
		`\bchills?\b`, `\bshivering\b`, `\brigors?\b`, `\bfeeling cold\b`,
		`\bkapkapi\b`, `\bthand lag(na|ti|ta)\b`,
		`कंपकंपी`, `ठंड लगना`, `ठंडी लगना`, `थंडी वाजणे`,
		`చలి`,
		`நடுக்கம்`,
		`ಚಳಿ`,
		`কাঁপুনি`,
	}},
	{"Common Cold", []string{
		`\b(common )?cold\b`, `\brunny nose\b`, `\bblocked nose\b`, `\bcoryza\b`,
		`\b(zukaa?m|jukaa?m|sardi)\b`, `\bnaak beh(na|ti|ta)\b`,
		`जुकाम`, `ज़ुकाम`, `सर्दी`, `सर्दी-जुकाम`,
		`జలుబు`, `\bjalubu\b`,
		`சளி`,
		`ನೆಗಡಿ`,
		`সর্দি`,
	}},
	{"Weakness", []string{
		`\bweak(ness)?\b`, `\bkamzor(i|ee)\b`,
		`कमजोरी`, `कमज़ोरी`, `अशक्तपणा`,
		`నీరసం`, `\bneerasam\b`,
		`பலவீனம்`,
		`ಸುಸ್ತು`, `\bsusthu\b`,
		`দুর্বলতা`,
	}},
	{"Fatigue", []string{
		`\bfatigue(d)?\b`, `\btired(ness)?\b`, `\bexhaust(ed|ion)\b`,
		`\bthakaa?n\b`,
		`थकान`, `थकावट`, `थकवा`,
		`అలసట`,
		`சோர்வு`,
		`ಆಯಾಸ`,
		`ক্লান্তি`,
	}},
	{"Dizziness", []string{
		`\bdizz(y|iness)\b`, `\bgiddi(ness)?\b`, `\bvertigo\b`, `\blight ?headed(ness)?\b`,
		`\bchakkar\b`,
		`चक्कर`,
		`కళ్ళు తిరగడం`,
		`தலைச்சுற்றல்`, `தலை சுற்றல்`,
		`ತಲೆ ಸುತ್ತು`,
		`মাথা ঘোরা`,
	}},
	{"Palpitations", []string{
		`\bpalpitations?\b`, `\b(racing|pounding) heart\b`,
		`\bdhadkan tez\b`, `\bdil (ki )?dhadkan\b`, `\bghabrahat\b`,
		`धड़कन तेज`, `घबराहट`, `छातीत धडधड`,
		`గుండె దడ`,
		`படபடப்பு`,
		`ಎದೆ ಬಡಿತ`,
		`বুক ধড়ফড়`,
	}},
	{"Burning Urination", []string{
		`\bburning (urination|micturition|while urinating|while passing urine)\b`, `\bdysuria\b`,
		`\b(peshab|pishab) (me|mein|main) jalan\b`,
		`पेशाब में जलन`, `लघवीला जळजळ`,
		`మూత్రంలో మంట`,
		`சிறுநீர் எரிச்சல்`,
		`ಮೂತ್ರದಲ್ಲಿ ಉರಿ`,
		`প্রস্রাবে জ্বালা`,
	}},
	{"Itching", []string{
		`\bitch(ing|y)?\b`, `\bpruritus\b`,
		`\bkhujli\b`,
		`खुजली`, `खाज`,
		`దురద`,
		`அரிப்பு`,
		`ತುರಿಕೆ`,
		`চুলকানি`,
	}},
	{"Skin Rash", []string{
		`\brash(es)?\b`, `\bhives\b`,
		`\b(daane|chakatte)\b`,
		`दाने`, `चकत्ते`, `पुरळ`,
		`దద్దుర్లు`,
		`தடிப்பு`,
		`ದದ್ದು`,
		`ফুসকুড়ি`,
	}},
	{"Swelling", []string{
		`\bswell(ing|en)\b`, `\boedema\b`, `\bedema\b`,
		`\b(sujan|soojan)\b`,
		`सूजन`, `सूज`,
		`వాపు`,
		`வீக்கம்`,
		`ಊತ`,
		`ফোলা`,
	}},
	{"Loss of Appetite", []string{
		`\b(loss of|no|poor|reduced) appetite\b`, `\banorexia\b`,
		`\bbhookh? (nahi|nahin|kam)\b`,
		`भूख नहीं`, `भूख कम`, `भूक लागत नाही`,
		`ఆకలి లేదు`, `ఆకలి లేకపోవడం`,
		`பசியின்மை`, `பசி இல்லை`,
		`ಹಸಿವಿಲ್ಲ`,
		`খিদে নেই`, `ক্ষুধামান্দ্য`,
	}},
	{"Insomnia", []string{
		`\binsomnia\b`, `\b(can'?t|cannot|unable to|not able to) sleep\b`, `\bsleepless(ness)?\b`,
		`\bneend (nahi|nahin|na) (aa?ti|aana)\b`,
		`नींद नहीं`, `नींद ना आना`, `झोप येत नाही`,
		`నిద్రలేమి`, `నిద్ర పట్టడం లేదు`,
		`தூக்கமின்மை`,
		`ನಿದ್ರಾಹೀನತೆ`,
		`অনিদ্রা`,
	}},
}
